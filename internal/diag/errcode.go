package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"qagen/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeBudget    Code = "budget"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeSkip      Code = "skip"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrNonEnglish):
		return CodeSkip
	case errors.Is(err, contract.ErrRateLimited):
		return CodeBudget
	case errors.Is(err, contract.ErrNoJSONArray), errors.Is(err, contract.ErrResponseInvalid):
		return CodeProtocol
	case errors.Is(err, contract.ErrInputMissing), errors.Is(err, contract.ErrInputMalformed):
		return CodeIO
	case errors.Is(err, contract.ErrInvalidInput), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	// 网络（连接/超时/上游 5xx）
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}
