package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qagen/pkg/contract"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// 解析完整 config.json
func TestLoadJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", `{
  "input": "blocks.json",
  "output_dir": "out",
  "delay_ms": 0,
  "llm": "gemini",
  "components": {"reader": "fs"},
  "provider": {"gemini": {"client": "gemini", "options": {"model": "m"}, "limits": {"rpm": 10}}}
}`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.LLM != "gemini" || cfg.Input != "blocks.json" || cfg.Components.Reader != "fs" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if cfg.DelayMS != 0 {
		t.Fatalf("显式 0 应保留: %d", cfg.DelayMS)
	}
	if cfg.Provider["gemini"].Limits.RPM != 10 {
		t.Fatalf("limits 未解析: %+v", cfg.Provider)
	}
	merged := Merge(Defaults(), cfg)
	if err := Validate(merged); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
	if merged.DelayMS != 0 || merged.PairsPerBlock != 3 {
		t.Fatalf("合并错误: %+v", merged)
	}
}

func TestLoadJSONUnsetDelay(t *testing.T) {
	cfg, err := LoadJSON("", []byte(`{"llm":"mock"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := Merge(Defaults(), cfg).DelayMS; got != 2000 {
		t.Fatalf("未设置 delay_ms 应保留默认: %d", got)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", `
input: blocks.json
delay_ms: 500
llm: mock
provider:
  mock:
    client: mock
    options:
      response_mode: wrapped
      pairs: 2
options:
  writer:
    atomic: false
dataset:
  format: both
`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Input != "blocks.json" || cfg.DelayMS != 500 || cfg.Dataset.Format != "both" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	var mo map[string]any
	if err := json.Unmarshal(cfg.Provider["mock"].Options, &mo); err != nil || mo["response_mode"] != "wrapped" {
		t.Fatalf("provider options: %s %v", cfg.Provider["mock"].Options, err)
	}
	if !strings.Contains(string(cfg.Options.Writer), `"atomic":false`) {
		t.Fatalf("writer options: %s", cfg.Options.Writer)
	}
}

func TestLoadUnknown(t *testing.T) {
	if _, err := LoadJSON("", []byte(`{"unknown":1}`)); err == nil {
		t.Fatalf("JSON 未知字段应报错")
	}
	if _, err := LoadYAML("", []byte("unknown: 1\n")); err == nil {
		t.Fatalf("YAML 未知字段应报错")
	}
	if _, err := LoadJSON("", nil); err == nil {
		t.Fatalf("无来源应报错")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("缺失文件: %v", err)
	}
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"QAGEN_INPUT=a.json",
		"QAGEN_DELAY_MS=0",
		"QAGEN_LLM=mock",
		"QAGEN_LOG_LEVEL=debug",
		"QAGEN_COMPONENTS_READER=fs",
		"QAGEN_DATASET_FORMAT=xlsx",
		"QAGEN_PROVIDER__mock__CLIENT=mock",
		"QAGEN_PROVIDER__mock__LIMITS_RPM=30",
		`QAGEN_PROVIDER__mock__OPTIONS_JSON={"pairs":1}`,
		"OTHER_LLM=ignored",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if over.LLM != "mock" || over.Input != "a.json" || over.DelayMS != 0 || over.Logging.Level != "debug" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	p := over.Provider["mock"]
	if p.Client != "mock" || p.Limits.RPM != 30 || string(p.Options) != `{"pairs":1}` {
		t.Fatalf("provider 覆盖错误: %+v", p)
	}
	if over.Dataset.Format != "xlsx" {
		t.Fatalf("dataset 覆盖错误: %+v", over.Dataset)
	}

	none, err := EnvOverlay(nil)
	if err != nil || none.DelayMS != -1 {
		t.Fatalf("空 ENV 应标记 delay 未设置: %+v %v", none, err)
	}
}

func TestEnvOverlayErrors(t *testing.T) {
	for _, kv := range []string{
		"QAGEN_DELAY_MS=soon",
		"QAGEN_PAIRS_PER_BLOCK=x",
		"QAGEN_PROVIDER__g__LIMITS_RPM=fast",
		"QAGEN_PROVIDER__g__OPTIONS_JSON={broken",
	} {
		if _, err := EnvOverlay([]string{kv}); err == nil {
			t.Errorf("%s 应报错", kv)
		}
	}
}

func TestMergeProviderFields(t *testing.T) {
	base := Defaults()
	base.Provider = map[string]Provider{"g": {Client: "gemini", Options: json.RawMessage(`{"model":"m"}`), Limits: Limits{RPM: 5}}}
	out := Merge(base, Config{DelayMS: -1, Provider: map[string]Provider{"g": {Limits: Limits{RPM: 9}}}})
	g := out.Provider["g"]
	if g.Client != "gemini" || string(g.Options) != `{"model":"m"}` || g.Limits.RPM != 9 {
		t.Fatalf("按字段覆盖错误: %+v", g)
	}
	if base.Provider["g"].Limits.RPM != 5 {
		t.Fatalf("base 被修改")
	}
}

func TestDefaultsClone(t *testing.T) {
	d := Defaults()
	if d.Components.Reader != "fs" || d.Components.Decoder != "qajson" || d.DelayMS != 2000 {
		t.Fatalf("默认值错误: %+v", d)
	}
	src := []byte("abc")
	dst := cloneRaw(src)
	src[0] = 'x'
	if string(dst) != "abc" {
		t.Fatalf("cloneRaw 未复制")
	}
	if v, err := atoi(" 10 "); err != nil || v != 10 {
		t.Fatalf("atoi 失败: %v %d", err, v)
	}
}

// Validate 错误分支
func TestValidateErrors(t *testing.T) {
	if err := Validate(Config{}); err == nil {
		t.Fatal("空配置应失败")
	}
	cases := map[string]func(*Config){
		"delay":       func(c *Config) { c.DelayMS = -1 },
		"pairs":       func(c *Config) { c.PairsPerBlock = 0 },
		"no-llm":      func(c *Config) { c.LLM = "" },
		"no-provider": func(c *Config) { c.LLM = "absent" },
		"no-client":   func(c *Config) { c.Provider = map[string]Provider{"mock": {}} },
		"bad-client":  func(c *Config) { c.Provider = map[string]Provider{"mock": {Client: "nope"}} },
		"bad-reader":  func(c *Config) { c.Components.Reader = "s3" },
		"neg-rpm":     func(c *Config) { c.Provider = map[string]Provider{"mock": {Client: "mock", Limits: Limits{RPM: -1}}} },
	}
	for name, mut := range cases {
		cfg := DefaultTemplateConfig()
		mut(&cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: 应失败", name)
		}
	}
	if err := Validate(DefaultTemplateConfig()); err != nil {
		t.Fatalf("模板应通过校验: %v", err)
	}
}

func TestAssembleMock(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "content_list.json", `[{"content":"Aspirin reduces fever and mild pain in adults."}]`)
	cfg := DefaultTemplateConfig()
	cfg.Input = in
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.DelayMS = 0
	cfg.PairsPerBlock = 2
	cfg.Provider["mock"] = Provider{Client: "mock", Options: json.RawMessage(`{"pairs":2}`)}
	comp, set, err := Assemble(cfg, nil, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if set.LLM != "mock" || set.OutputDir != cfg.OutputDir || set.Pacer == nil {
		t.Fatalf("settings: %+v", set)
	}
	blocks, err := comp.Source.Load(context.Background())
	if err != nil || len(blocks) != 1 {
		t.Fatalf("source 未指向 input: %v %v", blocks, err)
	}
	pairs, err := comp.Synth.Generate(context.Background(), blocks[0].Content, 1)
	if err != nil || len(pairs) != 2 {
		t.Fatalf("generate: %v %v", pairs, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "qa_pairs_1.json")); err != nil {
		t.Fatalf("逐块产物未写入 output_dir: %v", err)
	}
}

func TestAssembleMissingKey(t *testing.T) {
	t.Setenv("QAGEN_TEST_GEMINI_KEY", "")
	cfg := DefaultTemplateConfig()
	cfg.LLM = "gemini"
	cfg.Provider["gemini"] = Provider{Client: "gemini", Options: json.RawMessage(`{"api_key_env":"QAGEN_TEST_GEMINI_KEY"}`)}
	if _, _, err := Assemble(cfg, nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少 key 应在装配期失败: %v", err)
	}
}

func TestAssembleStrictOptions(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Options.Reader = json.RawMessage(`{"buf_size":1,"glob":"*"}`)
	if _, _, err := Assemble(cfg, nil, nil); err == nil {
		t.Fatal("reader 未知字段应失败")
	}
}

func TestPacer(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.DelayMS = 0
	if err := Pacer(cfg).Wait(context.Background()); err != nil {
		t.Fatalf("零延迟: %v", err)
	}
	cfg.LLM = "gemini"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Pacer(cfg).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消应返回 ctx 错误: %v", err)
	}
}

func TestAssembleDataset(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dataset: Dataset{OutputDir: dir, Format: "both"}}
	w, o, err := AssembleDataset(cfg, nil, nil)
	if err != nil || w == nil {
		t.Fatalf("assemble dataset: %v", err)
	}
	if o.Input != "final_filtered_qa.json" || o.Format != "both" {
		t.Fatalf("options: %+v", o)
	}
	cfg.Dataset.Format = "parquet"
	if _, _, err := AssembleDataset(cfg, nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法格式: %v", err)
	}
}

func TestWithKeys(t *testing.T) {
	out, err := withKeys(json.RawMessage(`{"path":"x","buf_size":8}`), map[string]any{"path": "y"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	_ = json.Unmarshal(out, &m)
	if m["path"] != "y" || m["buf_size"] != float64(8) {
		t.Fatalf("注入错误: %s", out)
	}
	if out, err := withKeys(json.RawMessage(`null`), map[string]any{"a": 1}); err != nil || string(out) != `{"a":1}` {
		t.Fatalf("null 选项: %s %v", out, err)
	}
	if _, err := withKeys(json.RawMessage(`[1]`), nil); err == nil {
		t.Fatal("非对象应报错")
	}
}
