package contract

import (
	"context"
	"io"
)

// ArtifactID: 持久化工件标识（相对输出根的文件名）。
type ArtifactID string

// Writer: 将工件以流式方式持久化到目标介质。
// 约束：
//  1. 同名工件覆盖写；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
