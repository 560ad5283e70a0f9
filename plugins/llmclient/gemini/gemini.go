package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"qagen/pkg/contract"
)

// Options: Google Generative Language API (Gemini) 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // https://generativelanguage.googleapis.com
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GEMINI_API_KEY
	APIKey    string `json:"api_key"`
	// 客户端超时（秒）。<=0 时采用默认 60 秒；慢响应会阻塞整条流水线直到超时。
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// EndpointPath 可覆盖默认 /v1beta/models/{model}:generateContent；支持 {model} 占位
	EndpointPath string `json:"endpoint_path"`
	// APIKeyInQuery 默认 true；为 false 时使用 x-goog-api-key 头
	APIKeyInQuery *bool `json:"api_key_in_query"`
	// 生成参数（可选）
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	// ResponseMIMEType 仅在 Prompt 携带 schema 时生效；为空则使用 application/json
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GEMINI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/v1beta/models/{model}:generateContent"
	}
	if o.APIKeyInQuery == nil {
		t := true
		o.APIKeyInQuery = &t
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
}

// Client 实现 contract.LLMClient。
type Client struct {
	endpoint string
	apiKey   string
	inQuery  bool
	temp     *float64
	maxOut   int
	respMIME string
	do       func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端；缺少 API Key 时立即失败。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key (%s)", contract.ErrInvalidInput, opts.APIKeyEnv)
	}
	endpoint := strings.ReplaceAll(opts.EndpointPath, "{model}", url.PathEscape(opts.Model))
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		endpoint: endpoint,
		apiKey:   key,
		inQuery:  *opts.APIKeyInQuery,
		temp:     opts.Temperature,
		maxOut:   opts.MaxOutputTokens,
		respMIME: opts.ResponseMIMEType,
		do:       hc.Do,
	}, nil
}

// 请求/响应（最小字段）。
type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type request struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// upstreamError 实现 net.Error，将 5xx/408 归为网络类错误，同时携带状态码与消息。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// encode 将 Prompt 映射为 contents；role=json_schema 的消息抽出为 responseSchema。
func (c *Client) encode(p contract.Prompt) ([]byte, error) {
	var req request
	var schema json.RawMessage
	switch v := p.(type) {
	case contract.TextPrompt:
		req.Contents = []content{{Role: "user", Parts: []part{{Text: string(v)}}}}
	case contract.ChatPrompt:
		for _, m := range v {
			role := strings.ToLower(strings.TrimSpace(m.Role))
			if role == "json_schema" {
				if json.Valid([]byte(m.Content)) {
					schema = json.RawMessage(m.Content)
				}
				continue
			}
			if role == "assistant" || role == "model" {
				role = "model"
			} else {
				role = "user"
			}
			req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
		}
	default:
		return nil, contract.ErrInvalidInput
	}
	if len(req.Contents) == 0 {
		return nil, contract.ErrInvalidInput
	}
	if c.temp != nil || c.maxOut > 0 || len(schema) > 0 {
		gc := &generationConfig{Temperature: c.temp, MaxOutputTokens: c.maxOut}
		if len(schema) > 0 {
			gc.ResponseMIMEType = c.respMIME
			gc.ResponseSchema = schema
		}
		req.GenerationConfig = gc
	}
	return json.Marshal(&req)
}

// Invoke 发送单次 generateContent 请求；返回首个候选全部文本段的拼接。
func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	body, err := c.encode(p)
	if err != nil {
		if errors.Is(err, contract.ErrInvalidInput) {
			return contract.Raw{}, fmt.Errorf("gemini encode: %w", err)
		}
		return contract.Raw{}, fmt.Errorf("gemini encode: %v: %w", err, contract.ErrInvalidInput)
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return contract.Raw{}, fmt.Errorf("gemini url: %v: %w", err, contract.ErrInvalidInput)
	}
	if c.inQuery {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("gemini request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if !c.inQuery {
		req.Header.Set("x-goog-api-key", c.apiKey)
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
		return contract.Raw{}, fmt.Errorf("gemini upstream %d: %s: %w", resp.StatusCode, msg, contract.ErrInvalidInput)
	}
	var gr response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return contract.Raw{}, fmt.Errorf("gemini decode: %w", contract.ErrResponseInvalid)
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return contract.Raw{}, fmt.Errorf("gemini blocked (%s): %w", gr.PromptFeedback.BlockReason, contract.ErrResponseInvalid)
	}
	if len(gr.Candidates) == 0 {
		return contract.Raw{}, fmt.Errorf("gemini: no candidates: %w", contract.ErrResponseInvalid)
	}
	var sb strings.Builder
	for _, pt := range gr.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	if sb.Len() == 0 {
		return contract.Raw{}, fmt.Errorf("gemini: empty text (finish=%s): %w", gr.Candidates[0].FinishReason, contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: sb.String()}, nil
}

var _ contract.LLMClient = (*Client)(nil)
