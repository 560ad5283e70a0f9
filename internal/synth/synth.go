// Package synth 将单个内容块转换为问答对：语言过滤、清洗、构造提示词、
// 调用生成接口、提取 JSON 数组，并落盘逐块产物。
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"qagen/internal/diag"
	"qagen/internal/textclean"
	"qagen/pkg/contract"
)

// TimeLayout 为问答记录与逐块产物使用的本地时间格式。
const TimeLayout = "2006-01-02 15:04:05"

// Components 为 Synthesizer 依赖的原子组件。
type Components struct {
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Decoder       contract.Decoder
	Writer        contract.Writer
}

// Options 为可选参数；零值使用默认。
type Options struct {
	// SnippetChars: 逐块产物中 original_text 的字符数，默认 200。
	SnippetChars int
	// Now: 时钟，默认 time.Now。
	Now     func() time.Time
	Logger  *diag.Logger
	Metrics *diag.Metrics
}

// Synthesizer 不持有跨块状态，可重复调用。
type Synthesizer struct {
	comp    Components
	snippet int
	now     func() time.Time
	log     *diag.Logger
	met     *diag.Metrics
}

// New 校验组件并构造 Synthesizer。
func New(c Components, o Options) (*Synthesizer, error) {
	if c.PromptBuilder == nil || c.LLM == nil || c.Decoder == nil || c.Writer == nil {
		return nil, fmt.Errorf("synth: %w: missing component", contract.ErrInvalidInput)
	}
	s := &Synthesizer{comp: c, snippet: o.SnippetChars, now: o.Now, log: o.Logger, met: o.Metrics}
	if s.snippet <= 0 {
		s.snippet = 200
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ArtifactName 返回第 index 块的产物名。
func ArtifactName(index int) contract.ArtifactID {
	return contract.ArtifactID("qa_pairs_" + strconv.Itoa(index) + ".json")
}

// Generate 处理第 index（1 起始）块。
// 非英文返回 ErrNonEnglish 且不调用接口；其余失败均包装 ErrSynthesis，
// 只影响本块。成功时返回至少一条记录，且每条都带有 index 与同一时间戳。
func (s *Synthesizer) Generate(ctx context.Context, text string, index int) ([]contract.QAPair, error) {
	if !textclean.IsEnglish(text) {
		return nil, fmt.Errorf("block %d: %w", index, contract.ErrNonEnglish)
	}
	tm := s.log.StartWith("synth", "generate", index, nil)

	cleaned := textclean.Clean(text)
	snippet := textclean.Truncate(cleaned, s.snippet) + "..."
	s.log.Debug("synth", "cleaned", index, map[string]string{"snippet": snippet})

	pairs, err := s.ask(ctx, cleaned, index)
	if err != nil {
		return nil, s.fail(tm, err, index)
	}

	ts := s.now().Format(TimeLayout)
	for i := range pairs {
		pairs[i].Index = index
		pairs[i].Timestamp = ts
	}
	art := contract.BlockArtifact{Index: index, Timestamp: ts, OriginalText: snippet, QAPairs: pairs}
	if err := WriteJSON(ctx, s.comp.Writer, ArtifactName(index), art); err != nil {
		return nil, s.fail(tm, err, index)
	}
	tm.Finish("generate", len(pairs))
	return pairs, nil
}

// ask: Prompt → LLM → Decoder。
func (s *Synthesizer) ask(ctx context.Context, cleaned string, index int) ([]contract.QAPair, error) {
	p, err := s.comp.PromptBuilder.Build(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	t0 := time.Now()
	raw, err := s.comp.LLM.Invoke(ctx, p)
	s.met.ObserveLLM(time.Since(t0))
	if err != nil {
		kv := map[string]string{}
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			kv["http_status"] = strconv.Itoa(ue.UpstreamStatus())
		}
		s.log.Error("llm", err, "invoke failed", index, kv)
		s.met.Error("llm", diag.Classify(err))
		return nil, fmt.Errorf("llm: %w", err)
	}
	pairs, err := s.comp.Decoder.Decode(ctx, raw)
	if err != nil {
		s.log.Debug("decoder", "raw response", index, map[string]string{"raw": textclean.Truncate(raw.Text, 512)})
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("decode: empty array: %w", contract.ErrResponseInvalid)
	}
	return pairs, nil
}

func (s *Synthesizer) fail(tm *diag.Timer, err error, index int) error {
	tm.Fail(err, "generate failed", nil)
	s.met.Error("synth", diag.Classify(err))
	return fmt.Errorf("block %d: %w: %w", index, contract.ErrSynthesis, err)
}

// WriteJSON 以两空格缩进、不转义 HTML 的形式写出 v。
func WriteJSON(ctx context.Context, w contract.Writer, id contract.ArtifactID, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := w.Write(ctx, id, &buf); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}
