package contract

import "errors"

// 运行期错误分类。
var (
	// ErrInputMissing: 初始内容文件不存在或不可读（整次运行中止）。
	ErrInputMissing = errors.New("input missing")
	// ErrInputMalformed: 初始内容文件不是合法 JSON 或形状不符（整次运行中止）。
	ErrInputMalformed = errors.New("input malformed")
	// ErrNonEnglish: 非错误，分类结果；该块被跳过且不调用 API。
	ErrNonEnglish = errors.New("non-english content")
	// ErrSynthesis: 单块合成失败（API 调用或响应解析），局部恢复。
	ErrSynthesis = errors.New("synthesis failed")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)
