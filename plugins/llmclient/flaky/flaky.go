package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"qagen/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的 LLM 实现：
// 第一次 Invoke 返回 ErrRateLimited；
// 第二次返回不含数组的文本；
// 之后返回一条占位问答。
type Client struct {
	prefix  string
	logPath string
	count   atomic.Int32
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	return &Client{prefix: o.Prefix, logPath: o.LogPath}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	n := c.count.Add(1)
	switch n {
	case 1:
		c.log("rate_limited")
		return contract.Raw{}, contract.ErrRateLimited
	case 2:
		c.log("no_array")
		return contract.Raw{Text: "Sorry, no pairs this time."}, nil
	}
	c.log("ok")
	items := []struct {
		TextInput string `json:"text_input"`
		Output    string `json:"output"`
	}{{
		TextInput: fmt.Sprintf("%s question %d?", c.prefix, n),
		Output:    fmt.Sprintf("%s answer %d.", c.prefix, n),
	}}
	bts, _ := json.Marshal(items)
	return contract.Raw{Text: string(bts)}, nil
}

var _ contract.LLMClient = (*Client)(nil)
