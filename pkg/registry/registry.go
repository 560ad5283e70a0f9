package registry

import (
	"bytes"
	"encoding/json"

	"qagen/pkg/contract"
	dqa "qagen/plugins/decoder/qajson"
	flaky "qagen/plugins/llmclient/flaky"
	gmi "qagen/plugins/llmclient/gemini"
	mock "qagen/plugins/llmclient/mock"
	oai "qagen/plugins/llmclient/openai"
	pqa "qagen/plugins/prompt/qa"
	rfs "qagen/plugins/reader/filesystem"
	wfs "qagen/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.ContentSource, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: content_list.json / STDIN
	"fs": func(raw json.RawMessage) (contract.ContentSource, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// qa: 问答对生成指令（Text 或 Chat+schema）
	"qa": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		var opts pqa.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pqa.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": func(raw json.RawMessage) (contract.LLMClient, error) { return oai.New(raw) },
	"gemini": func(raw json.RawMessage) (contract.LLMClient, error) { return gmi.New(raw) },
	"mock":   func(raw json.RawMessage) (contract.LLMClient, error) { return mock.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.LLMClient, error) { return flaky.New(raw) },
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// qajson: 提取首个 JSON 数组 [{text_input,output}]
	"qajson": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dqa.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dqa.New(raw)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
