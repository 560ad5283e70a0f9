package qa

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"qagen/internal/textclean"
	"qagen/pkg/contract"
)

// Options 为问答生成 PromptBuilder 的最小配置。
// InlineTemplate / TemplatePath 为提示模板（二选一，均为空时使用内置默认模板）。
// 模板可用字段：{{.Count}} 问答对数量，{{.Items}} 序号 1..Count，{{.Text}} 截断后的清洗文本。
type Options struct {
	InlineTemplate string `json:"inline_template"`
	TemplatePath   string `json:"template_path"`
	// PairsPerBlock: 每块要求生成的问答对数量，默认 3。
	PairsPerBlock int `json:"pairs_per_block"`
	// MaxChars: 送入提示词的文本上限（字符），默认 5000。
	MaxChars int `json:"max_chars"`
	// JSONSchema: 为 true 时附带 json_schema 消息，由 gemini/openai 客户端开启 JSON 模式。
	JSONSchema bool `json:"json_schema"`
}

// Builder: 以清洗后的文本构造 Prompt；运行期不做 I/O，模板在构造期解析。
type Builder struct {
	tpl      *template.Template
	count    int
	maxChars int
	schema   bool
}

// New 创建问答 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultTemplate
	if o.InlineTemplate != "" {
		src = o.InlineTemplate
	} else if o.TemplatePath != "" {
		b, err := os.ReadFile(o.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("prompt template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("qa").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt template parse: %w", err)
	}
	if o.PairsPerBlock <= 0 {
		o.PairsPerBlock = 3
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 5000
	}
	return &Builder{tpl: tpl, count: o.PairsPerBlock, maxChars: o.MaxChars, schema: o.JSONSchema}, nil
}

type view struct {
	Count int
	Items []int
	Text  string
}

// Build: 截断文本并渲染模板。
func (b *Builder) Build(ctx context.Context, text string) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt: %w: empty text", contract.ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := b.tpl.Execute(&buf, view{Count: b.count, Items: seq(b.count), Text: textclean.Truncate(text, b.maxChars)}); err != nil {
		return nil, fmt.Errorf("prompt render: %v: %w", err, contract.ErrInvalidInput)
	}
	if !b.schema {
		return contract.TextPrompt(buf.String()), nil
	}
	return contract.ChatPrompt{
		{Role: "user", Content: buf.String()},
		{Role: "json_schema", Content: qaJSONSchema},
	}, nil
}

var _ contract.PromptBuilder = (*Builder)(nil)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// 格式示例的条目数与 Count 一致。
const defaultTemplate = `Generate {{.Count}} medical question-answer pairs based on this text:
    {{.Text}}

    Format your response strictly as a JSON array:
    [
{{- range $i, $n := .Items}}{{if $i}},{{end}}
      {"text_input": "question{{$n}}", "output": "answer{{$n}}"}
{{- end}}
    ]`

// 问答数组的最小 JSON Schema：每项含 {text_input:string, output:string}
const qaJSONSchema = `{"type":"array","items":{"type":"object","properties":{"text_input":{"type":"string"},"output":{"type":"string"}},"required":["text_input","output"]}}`
