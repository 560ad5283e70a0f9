package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qagen/internal/dataset"
	"qagen/internal/diag"
	"qagen/internal/pipeline"
	"qagen/internal/rate"
	"qagen/internal/synth"
	"qagen/pkg/contract"
	"qagen/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Input) == "" {
		return errors.New("config: input empty")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return errors.New("config: output_dir empty")
	}
	if cfg.DelayMS < 0 {
		return errors.New("config: delay_ms must be >= 0")
	}
	if cfg.MaxPromptChars <= 0 {
		return errors.New("config: max_prompt_chars must be > 0")
	}
	if cfg.SnippetChars <= 0 {
		return errors.New("config: snippet_chars must be > 0")
	}
	if cfg.PairsPerBlock <= 0 {
		return errors.New("config: pairs_per_block must be > 0")
	}
	if cfg.LLM == "" {
		return errors.New("config: llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.LLM)
	}
	if prov.Limits.RPM < 0 {
		return fmt.Errorf("config: provider %q rpm must be >= 0", cfg.LLM)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.PromptBuilder, d.PromptBuilder); registry.PromptBuilder[name] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if registry.LLMClient[prov.Client] == nil {
		return fmt.Errorf("config: llm client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含 Pacer）。
// 严格 Options 解析在 registry（工厂）层进行；顶层键（input/output_dir/pairs_per_block/
// max_prompt_chars）注入对应组件的 Options 并覆盖同名键。
// Terminal 由调用方设置。
func Assemble(cfg Config, logger *diag.Logger, met *diag.Metrics) (pipeline.Components, pipeline.Settings, error) {
	var (
		comp pipeline.Components
		set  pipeline.Settings
	)
	if err := Validate(cfg); err != nil {
		return comp, set, err
	}

	d := Defaults().Components
	rn := effName(cfg.Components.Reader, d.Reader)
	wn := effName(cfg.Components.Writer, d.Writer)
	pn := effName(cfg.Components.PromptBuilder, d.PromptBuilder)
	dn := effName(cfg.Components.Decoder, d.Decoder)

	ropts, err := withKeys(cfg.Options.Reader, map[string]any{"path": cfg.Input})
	if err != nil {
		return comp, set, fmt.Errorf("config: options.reader: %w", err)
	}
	src, err := registry.Reader[rn](ropts)
	if err != nil {
		return comp, set, fmt.Errorf("config: reader: %w", err)
	}
	wopts, err := withKeys(cfg.Options.Writer, map[string]any{"output_dir": cfg.OutputDir})
	if err != nil {
		return comp, set, fmt.Errorf("config: options.writer: %w", err)
	}
	w, err := registry.Writer[wn](wopts)
	if err != nil {
		return comp, set, fmt.Errorf("config: writer: %w", err)
	}
	popts, err := withKeys(cfg.Options.PromptBuilder, map[string]any{
		"pairs_per_block": cfg.PairsPerBlock,
		"max_chars":       cfg.MaxPromptChars,
	})
	if err != nil {
		return comp, set, fmt.Errorf("config: options.prompt_builder: %w", err)
	}
	pb, err := registry.PromptBuilder[pn](popts)
	if err != nil {
		return comp, set, fmt.Errorf("config: prompt_builder: %w", err)
	}
	dec, err := registry.Decoder[dn](cfg.Options.Decoder)
	if err != nil {
		return comp, set, fmt.Errorf("config: decoder: %w", err)
	}

	// LLM 客户端（缺少 API Key 在此失败，先于任何块处理）
	prov := cfg.Provider[cfg.LLM]
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return comp, set, fmt.Errorf("config: provider %q: %w", cfg.LLM, err)
	}

	syn, err := synth.New(synth.Components{
		PromptBuilder: pb,
		LLM:           llm,
		Decoder:       dec,
		Writer:        w,
	}, synth.Options{SnippetChars: cfg.SnippetChars, Logger: logger, Metrics: met})
	if err != nil {
		return comp, set, err
	}

	comp = pipeline.Components{Source: src, Synth: syn, Writer: w}
	set = pipeline.Settings{
		Pacer:     Pacer(cfg),
		OutputDir: cfg.OutputDir,
		LLM:       cfg.LLM,
		Metrics:   met,
	}
	return comp, set, nil
}

// Pacer 由 delay_ms 与 provider.limits.rpm 组合：先固定等待，再按 RPM 放行。
func Pacer(cfg Config) rate.Pacer {
	delay := rate.Constant(time.Duration(cfg.DelayMS) * time.Millisecond)
	rpm := cfg.Provider[cfg.LLM].Limits.RPM
	if rpm <= 0 {
		return delay
	}
	return rate.Chain(delay, rate.Limited(rpm))
}

// AssembleDataset 构造第二阶段的 Writer 与 dataset.Options；不依赖 LLM 配置。
func AssembleDataset(cfg Config, logger *diag.Logger, met *diag.Metrics) (contract.Writer, dataset.Options, error) {
	ds, def := cfg.Dataset, Defaults().Dataset
	if strings.TrimSpace(ds.Input) == "" {
		ds.Input = def.Input
	}
	if strings.TrimSpace(ds.OutputDir) == "" {
		ds.OutputDir = def.OutputDir
	}
	if strings.TrimSpace(ds.Format) == "" {
		ds.Format = def.Format
	}
	switch strings.ToLower(ds.Format) {
	case "csv", "xlsx", "both":
	default:
		return nil, dataset.Options{}, fmt.Errorf("config: dataset.format %q: %w", ds.Format, contract.ErrInvalidInput)
	}
	wn := effName(cfg.Components.Writer, Defaults().Components.Writer)
	newW := registry.Writer[wn]
	if newW == nil {
		return nil, dataset.Options{}, fmt.Errorf("config: writer %q not registered", wn)
	}
	wopts, err := withKeys(cfg.Options.Writer, map[string]any{"output_dir": ds.OutputDir})
	if err != nil {
		return nil, dataset.Options{}, fmt.Errorf("config: options.writer: %w", err)
	}
	w, err := newW(wopts)
	if err != nil {
		return nil, dataset.Options{}, fmt.Errorf("config: writer: %w", err)
	}
	return w, dataset.Options{Input: ds.Input, Format: ds.Format, Logger: logger, Metrics: met}, nil
}

// withKeys 将 kv 写入原样 JSON 对象（覆盖同名键）。
func withKeys(raw json.RawMessage, kv map[string]any) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	if m == nil {
		m = make(map[string]json.RawMessage, len(kv))
	}
	for k, v := range kv {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = b
	}
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
