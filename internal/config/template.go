package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock LLM（本地/离线调试友好），同时列出 gemini/openai 的全部选项键；
// - 输入 content_list.json，产物写入当前目录；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Metrics = Metrics{File: ""}
	cfg.LLM = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: json.RawMessage(`{"prefix":"MOCK","pairs":3,"response_mode":"qa_json"}`),
		},
		"gemini": {
			Client: "gemini",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "gemini-2.5-flash",
  "api_key_env": "GEMINI_API_KEY",
  "api_key": "",
  "endpoint_path": "",
  "timeout_seconds": 60,
  "api_key_in_query": true,
  "temperature": null,
  "max_output_tokens": 0,
  "response_mime_type": ""
}`),
			Limits: Limits{RPM: 15},
		},
		"openai": {
			Client: "openai",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "temperature": null,
  "max_tokens": 0,
  "endpoint_path": "",
  "extra_headers": {}
}`),
		},
	}
	// Options：列出各组件除顶层注入键以外的全部键。
	cfg.Options.Reader = json.RawMessage(`{"buf_size": 65536}`)
	cfg.Options.Writer = json.RawMessage(`{"atomic": true, "perm_file": 0, "perm_dir": 0}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{"inline_template": "", "template_path": "", "json_schema": false}`)
	cfg.Options.Decoder = json.RawMessage(`{"strict": false}`)
	return cfg
}
