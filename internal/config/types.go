package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Input: content_list.json 路径；"-" 表示 STDIN。
	Input string `json:"input"`
	// OutputDir: 逐块产物与汇总产物的输出目录。
	OutputDir string `json:"output_dir"`
	// DelayMS: 每个调用过接口的块之后的等待（毫秒）。0 表示不等待；-1 表示未设置（仅覆盖层使用）。
	DelayMS        int `json:"delay_ms"`
	MaxPromptChars int `json:"max_prompt_chars"`
	SnippetChars   int `json:"snippet_chars"`
	PairsPerBlock  int `json:"pairs_per_block"`

	Logging Logging `json:"logging"`
	Metrics Metrics `json:"metrics"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Dataset Dataset `json:"dataset"`
}

// Logging: 日志等级与目录；轮转策略为固定默认（10MiB）。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Metrics: 非空时运行结束将指标写为 Prometheus 文本格式。
type Metrics struct {
	File string `json:"file"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	Writer        string `json:"writer"`
	PromptBuilder string `json:"prompt_builder"`
	Decoder       string `json:"decoder"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	Writer        json.RawMessage `json:"writer"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Decoder       json.RawMessage `json:"decoder"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 每分钟请求上限，0 表示不限；与 delay_ms 叠加生效。
type Limits struct {
	RPM int `json:"rpm"`
}

// Dataset: 第二阶段（问答 JSON → 训练表格）参数。
type Dataset struct {
	Input     string `json:"input"`
	OutputDir string `json:"output_dir"`
	// Format: csv|xlsx|both。
	Format string `json:"format"`
}
