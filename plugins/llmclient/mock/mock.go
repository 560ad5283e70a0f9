package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"qagen/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 输出前缀，默认 "MOCK"
	// Pairs: 每次调用产出的问答对数量，默认 3。
	Pairs int `json:"pairs"`
	// ResponseMode: 可选的响应模式（用于集成测试与无网络联调）。
	//  - "qa_json"（默认）: 严格 JSON 数组 [{text_input,output}]。
	//  - "wrapped": 数组前后夹带说明文字，检验括号提取。
	//  - "refuse": 纯文本拒答，不含数组。
	//  - "empty": 返回 "[]"。
	//  - "echo": 回显 Prompt 摘要。
	ResponseMode string `json:"response_mode,omitempty"`
}

type Client struct {
	prefix string
	pairs  int
	mode   string
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	if o.Pairs <= 0 {
		o.Pairs = 3
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "qa_json"
	}
	return &Client{prefix: o.Prefix, pairs: o.Pairs, mode: mode}, nil
}

func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	text, err := promptText(p)
	if err != nil {
		return contract.Raw{}, err
	}
	switch c.mode {
	case "qa_json":
		return contract.Raw{Text: c.pairsJSON(text)}, nil
	case "wrapped":
		return contract.Raw{Text: "Here are the pairs you asked for:\n" + c.pairsJSON(text) + "\nLet me know if you need more."}, nil
	case "refuse":
		return contract.Raw{Text: "I cannot help with that."}, nil
	case "empty":
		return contract.Raw{Text: "[]"}, nil
	}
	// 兜底：回显 Prompt 摘要
	return contract.Raw{Text: fmt.Sprintf("%s(%s): %s", c.prefix, c.mode, summary(text))}, nil
}

// pairsJSON 按 Prompt 摘要构造占位问答，保证输出稳定可复现。
func (c *Client) pairsJSON(text string) string {
	type item struct {
		TextInput string `json:"text_input"`
		Output    string `json:"output"`
	}
	s := summary(text)
	items := make([]item, 0, c.pairs)
	for i := 1; i <= c.pairs; i++ {
		items = append(items, item{
			TextInput: fmt.Sprintf("%s question %d?", c.prefix, i),
			Output:    fmt.Sprintf("%s answer %d: %s", c.prefix, i, s),
		})
	}
	bts, _ := json.Marshal(items)
	return string(bts)
}

func promptText(p contract.Prompt) (string, error) {
	switch v := p.(type) {
	case contract.TextPrompt:
		return string(v), nil
	case contract.ChatPrompt:
		var sb strings.Builder
		for _, m := range v {
			if m.Role == "json_schema" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(m.Content)
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("mock: unsupported prompt %T: %w", p, contract.ErrInvalidInput)
}

// summary 取 Prompt 中最长一行的前 40 个字符（通常即正文），避免回显过长。
func summary(text string) string {
	best := ""
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if len(ln) > len(best) {
			best = ln
		}
	}
	r := []rune(best)
	if len(r) > 40 {
		r = r[:40]
	}
	return string(r)
}

var _ contract.LLMClient = (*Client)(nil)
