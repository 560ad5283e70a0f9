package contract

import "context"

// ContentSource: 输入源抽象。一次性读取全部内容块，顺序即身份。
// 读取失败须包装 ErrInputMissing 或 ErrInputMalformed。
type ContentSource interface {
	Load(ctx context.Context) ([]ContentBlock, error)
}
