package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"qagen/pkg/contract"
)

// Options: OpenAI Chat Completions（及兼容服务）最小必需配置。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"`     // 默认 OPENAI_API_KEY
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 可选 client 级超时（秒）
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	// EndpointPath 覆盖默认 /chat/completions；可为完整 URL（以 http 开头）
	EndpointPath string `json:"endpoint_path"`
	// ExtraHeaders 追加/覆盖请求头（用于 Azure/OpenRouter 等兼容服务）
	ExtraHeaders map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

// Client 实现 contract.LLMClient。
type Client struct {
	endpoint string
	apiKey   string
	model    string
	temp     *float64
	maxTok   int
	extraH   map[string]string
	do       func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端；缺少 API Key 时立即失败。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("openai: %w: missing api key (%s)", contract.ErrInvalidInput, opts.APIKeyEnv)
	}
	endpoint := opts.EndpointPath
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		endpoint: endpoint,
		apiKey:   key,
		model:    opts.Model,
		temp:     opts.Temperature,
		maxTok:   opts.MaxTokens,
		extraH:   opts.ExtraHeaders,
		do:       hc.Do,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// responseFormat: 仅在 Prompt 携带 schema 时启用。数组不能作为顶层 schema，
// 因此包一层 {"qa_pairs": [...]} 并退化为 json_object，解码器按首个数组提取即可。
type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type request struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// upstreamError 实现 net.Error，将 5xx/408 归为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func (c *Client) encode(p contract.Prompt) ([]byte, error) {
	req := request{Model: c.model, Temperature: c.temp, MaxTokens: c.maxTok}
	switch v := p.(type) {
	case contract.TextPrompt:
		req.Messages = []message{{Role: "user", Content: string(v)}}
	case contract.ChatPrompt:
		for _, m := range v {
			if strings.EqualFold(strings.TrimSpace(m.Role), "json_schema") {
				req.ResponseFormat = &responseFormat{Type: "json_object"}
				continue
			}
			req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
		}
	default:
		return nil, contract.ErrInvalidInput
	}
	if len(req.Messages) == 0 {
		return nil, contract.ErrInvalidInput
	}
	return json.Marshal(&req)
}

// Invoke: 单次调用，同步返回首个 choice 的内容。
func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	body, err := c.encode(p)
	if err != nil {
		if errors.Is(err, contract.ErrInvalidInput) {
			return contract.Raw{}, fmt.Errorf("openai encode: %w", err)
		}
		return contract.Raw{}, fmt.Errorf("openai encode: %v: %w", err, contract.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("openai request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		return contract.Raw{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return contract.Raw{}, contract.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return contract.Raw{}, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return contract.Raw{}, fmt.Errorf("openai upstream %d: %s: %w", resp.StatusCode, msg, contract.ErrInvalidInput)
	}
	var or response
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return contract.Raw{}, fmt.Errorf("openai decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return contract.Raw{}, fmt.Errorf("openai: empty choice: %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: or.Choices[0].Message.Content}, nil
}

var _ contract.LLMClient = (*Client)(nil)
