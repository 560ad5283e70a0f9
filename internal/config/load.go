package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Input:          "content_list.json",
		OutputDir:      ".",
		DelayMS:        2000,
		MaxPromptChars: 5000,
		SnippetChars:   200,
		PairsPerBlock:  3,
		Logging:        Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:        "fs",
			Writer:        "fs",
			PromptBuilder: "qa",
			Decoder:       "qajson",
		},
		Dataset: Dataset{
			Input:     "final_filtered_qa.json",
			OutputDir: ".",
			Format:    "csv",
		},
	}
}

// LoadFile 按扩展名选择解析器：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	r, closeFn, err := open(path, raw)
	if err != nil {
		return Config{DelayMS: -1}, err
	}
	defer closeFn()
	return decodeStrict(r)
}

// LoadYAML 解析 YAML 配置：先解码为通用树，再转为 JSON 走同一套严格解码，
// 使两种格式的字段名与未知字段规则一致。
func LoadYAML(path string, raw []byte) (Config, error) {
	r, closeFn, err := open(path, raw)
	if err != nil {
		return Config{DelayMS: -1}, err
	}
	defer closeFn()
	var tree map[string]any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
		return Config{DelayMS: -1}, fmt.Errorf("config yaml: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{DelayMS: -1}, fmt.Errorf("config yaml: %w", err)
	}
	return decodeStrict(bytes.NewReader(b))
}

func open(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

func decodeStrict(r io.Reader) (Config, error) {
	// delay_ms 的 0 具有语义（不等待），预置 -1 以区分“未出现”。
	cfg := Config{DelayMS: -1}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	// 顶层
	if s := strings.TrimSpace(over.Input); s != "" {
		out.Input = s
	}
	if s := strings.TrimSpace(over.OutputDir); s != "" {
		out.OutputDir = s
	}
	// 约定：over.DelayMS >= 0 视为“存在”，-1 视为未覆盖。
	if over.DelayMS >= 0 {
		out.DelayMS = over.DelayMS
	}
	if over.MaxPromptChars != 0 {
		out.MaxPromptChars = over.MaxPromptChars
	}
	if over.SnippetChars != 0 {
		out.SnippetChars = over.SnippetChars
	}
	if over.PairsPerBlock != 0 {
		out.PairsPerBlock = over.PairsPerBlock
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	if s := strings.TrimSpace(over.Metrics.File); s != "" {
		out.Metrics.File = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.PromptBuilder != "" {
		out.Components.PromptBuilder = over.Components.PromptBuilder
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}

	// Provider（按字段覆盖：client/options 非空、rpm 非 0 时替换）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			cur := prov[k]
			if v.Client != "" {
				cur.Client = v.Client
			}
			if len(v.Options) > 0 {
				cur.Options = cloneRaw(v.Options)
			}
			if v.Limits.RPM != 0 {
				cur.Limits.RPM = v.Limits.RPM
			}
			prov[k] = cur
		}
		out.Provider = prov
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.PromptBuilder) > 0 {
		out.Options.PromptBuilder = cloneRaw(over.Options.PromptBuilder)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}

	if s := strings.TrimSpace(over.Dataset.Input); s != "" {
		out.Dataset.Input = s
	}
	if s := strings.TrimSpace(over.Dataset.OutputDir); s != "" {
		out.Dataset.OutputDir = s
	}
	if s := strings.TrimSpace(over.Dataset.Format); s != "" {
		out.Dataset.Format = s
	}

	// LLM 名称
	if s := strings.TrimSpace(over.LLM); s != "" {
		out.LLM = s
	}
	return out
}

// EnvPrefix 为本程序识别的环境变量前缀。
const EnvPrefix = "QAGEN_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUT, OUTPUT_DIR, DELAY_MS, MAX_PROMPT_CHARS, SNIPPET_CHARS, PAIRS_PER_BLOCK,
// LLM, LOG_LEVEL, LOG_DIR, METRICS_FILE, COMPONENTS_*, DATASET_*
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_RPM / PROVIDER__<name>__OPTIONS_JSON。
// 数值解析失败返回错误，避免静默忽略拼写错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// -1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.DelayMS = -1
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[:eq]
		val := kv[eq+1:]
		nk := strings.TrimPrefix(key, EnvPrefix)
		tv := strings.TrimSpace(val)
		var err error
		switch nk {
		case "INPUT":
			over.Input = tv
		case "OUTPUT_DIR":
			over.OutputDir = tv
		case "DELAY_MS":
			if tv != "" {
				over.DelayMS, err = atoi(tv)
			}
		case "MAX_PROMPT_CHARS":
			if tv != "" {
				over.MaxPromptChars, err = atoi(tv)
			}
		case "SNIPPET_CHARS":
			if tv != "" {
				over.SnippetChars, err = atoi(tv)
			}
		case "PAIRS_PER_BLOCK":
			if tv != "" {
				over.PairsPerBlock, err = atoi(tv)
			}
		case "LLM":
			over.LLM = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_DIR":
			over.Logging.Dir = tv
		case "METRICS_FILE":
			over.Metrics.File = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = tv
		case "COMPONENTS_DECODER":
			over.Components.Decoder = tv
		case "DATASET_INPUT":
			over.Dataset.Input = tv
		case "DATASET_OUTPUT_DIR":
			over.Dataset.OutputDir = tv
		case "DATASET_FORMAT":
			over.Dataset.Format = tv
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if !strings.HasPrefix(nk, "PROVIDER__") {
				continue
			}
			parts := strings.Split(nk, "__")
			if len(parts) < 3 {
				continue
			}
			name := strings.TrimSpace(parts[1])
			field := strings.Join(parts[2:], "__")
			p := prov[name]
			changed := false
			switch field {
			case "CLIENT":
				if tv != "" {
					p.Client = tv
					changed = true
				}
			case "LIMITS_RPM":
				if tv != "" {
					p.Limits.RPM, err = atoi(tv)
					changed = err == nil
				}
			case "OPTIONS_JSON":
				// 空值视为未设置，避免清空现有配置
				if tv != "" {
					if !json.Valid([]byte(tv)) {
						err = errors.New("invalid json")
					} else {
						p.Options = json.RawMessage(tv)
						changed = true
					}
				}
			}
			// 仅在发生有效变更时记录该 provider；避免空值覆盖配置文件
			if changed {
				prov[name] = p
			}
		}
		if err != nil {
			return over, fmt.Errorf("env %s: %w", key, err)
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func atoi(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}
