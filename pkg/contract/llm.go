package contract

import (
	"context"
	"errors"
)

// Raw: LLM 客户端返回的原始文本载荷。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// Prompt: 不透明载荷，由具体 PromptBuilder/LLMClient 配对解释。
type Prompt any

// TextPrompt: 文本型提示词载荷。
type TextPrompt string

// Message: 最小会话消息形状（可用于 ChatPrompt）。
type Message struct {
	Role    string
	Content string
}

// ChatPrompt: 会话型提示词载荷（最小集合）。
type ChatPrompt []Message

// LLMClient: 以 Prompt 为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回；应尊重 ctx 取消/超时。
type LLMClient interface {
	Invoke(ctx context.Context, p Prompt) (Raw, error)
}

// PromptBuilder: 基于清洗后的文本构造确定性的 Prompt。
// 纯计算，不做 I/O。
type PromptBuilder interface {
	Build(ctx context.Context, text string) (Prompt, error)
}

// Decoder: 将 Raw 解码为问答对（尚未盖章 index/timestamp）。
type Decoder interface {
	Decode(ctx context.Context, raw Raw) ([]QAPair, error)
}

// 最小错误分类（用于上层策略判定）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrNoJSONArray: 响应文本中找不到 [...] 片段。
	ErrNoJSONArray = errors.New("no json array in response")
)
