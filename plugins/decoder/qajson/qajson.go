package qajson

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"qagen/pkg/contract"
)

// Options: 解码宽松度。
type Options struct {
	// Strict: 为 true 时任一条目缺少 text_input/output 即判定响应无效。
	// 默认 false：与上游输出保持一致，原样接受。
	Strict bool `json:"strict"`
}

type decoder struct {
	strict bool
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("qajson options: %w", err)
		}
	}
	return &decoder{strict: opts.Strict}, nil
}

// Decode 期望 Raw.Text 中包含 JSON 数组：[{"text_input": string, "output": string}, ...]，
// 允许数组前后夹杂说明文字或代码围栏。
func (d *decoder) Decode(ctx context.Context, raw contract.Raw) ([]contract.QAPair, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	arr, err := ExtractArray(raw.Text)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty qa array: %w", contract.ErrResponseInvalid)
	}
	if d.strict {
		for i, qa := range arr {
			if strings.TrimSpace(qa.TextInput) == "" || strings.TrimSpace(qa.Output) == "" {
				return nil, fmt.Errorf("qa item %d missing fields: %w", i, contract.ErrResponseInvalid)
			}
		}
	}
	return arr, nil
}

var _ contract.Decoder = (*decoder)(nil)

// firstBracket: 最短的首个 [...] 片段（跨行）。
var firstBracket = regexp.MustCompile(`(?s)\[(.*?)\]`)

// ExtractArray 尽力从自由文本中取出首个 JSON 数组并解析。
// 先尝试最短匹配；失败时再按括号配对（忽略字符串内的括号）取完整数组，
// 以兼容答案文本中出现 ']' 或嵌套数组的情况。
// 找不到数组返回 ErrNoJSONArray；片段无法解析返回 ErrResponseInvalid。
func ExtractArray(text string) ([]contract.QAPair, error) {
	m := firstBracket.FindStringSubmatch(text)
	if m == nil {
		return nil, contract.ErrNoJSONArray
	}
	arr, firstErr := parseArray(m[1])
	if firstErr == nil {
		return arr, nil
	}
	if seg, ok := balancedArray(text); ok {
		if arr, err := parseArray(seg[1 : len(seg)-1]); err == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("parse qa array: %v: %w", firstErr, contract.ErrResponseInvalid)
}

// parseArray 解析数组内容；null 条目视为无效，不产出空问答。
func parseArray(body string) ([]contract.QAPair, error) {
	var items []*contract.QAPair
	if err := json.Unmarshal([]byte("["+body+"]"), &items); err != nil {
		return nil, err
	}
	out := make([]contract.QAPair, 0, len(items))
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("item %d is null", i)
		}
		out = append(out, *it)
	}
	return out, nil
}

// balancedArray 自首个 '[' 起按深度配对，返回完整数组片段。
func balancedArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
