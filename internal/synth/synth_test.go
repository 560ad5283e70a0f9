package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"qagen/pkg/contract"
	"qagen/plugins/decoder/qajson"
	"qagen/plugins/prompt/qa"
)

const english = "Aspirin is used to reduce fever and relieve mild to moderate pain. " +
	"Report side effects to FDA at 1-800-332-1088. Visit www.fda.gov/medwatch for details."

type stubLLM struct {
	calls int
	text  string
	err   error
	last  contract.Prompt
}

func (s *stubLLM) Invoke(ctx context.Context, p contract.Prompt) (contract.Raw, error) {
	s.calls++
	s.last = p
	return contract.Raw{Text: s.text}, s.err
}

type memWriter struct {
	files map[contract.ArtifactID][]byte
	err   error
}

func (m *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(r)
	if m.files == nil {
		m.files = map[contract.ArtifactID][]byte{}
	}
	m.files[id] = b
	return nil
}

func newSynth(t *testing.T, llm contract.LLMClient, w contract.Writer) *Synthesizer {
	t.Helper()
	pb, err := qa.New(nil)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	dec, _ := qajson.New(nil)
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local) }
	s, err := New(Components{PromptBuilder: pb, LLM: llm, Decoder: dec, Writer: w}, Options{Now: clock})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func TestGenerateSuccess(t *testing.T) {
	llm := &stubLLM{text: "Sure!\n[{\"text_input\":\"What is aspirin for?\",\"output\":\"Pain & fever.\"}," +
		"{\"text_input\":\"Dose?\",\"output\":\"Ask a doctor.\"}]\nThanks"}
	w := &memWriter{}
	s := newSynth(t, llm, w)

	pairs, err := s.Generate(context.Background(), english, 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs=%d", len(pairs))
	}
	for _, p := range pairs {
		if p.Index != 7 || p.Timestamp != "2024-03-09 14:05:06" {
			t.Fatalf("unexpected stamp %#v", p)
		}
	}
	prompt := string(llm.last.(contract.TextPrompt))
	if strings.Contains(prompt, "1-800-332-1088") || strings.Contains(prompt, "fda.gov") {
		t.Fatalf("prompt should carry cleaned text: %q", prompt)
	}
	body, ok := w.files["qa_pairs_7.json"]
	if !ok {
		t.Fatalf("artifact not written: %v", w.files)
	}
	if !bytes.Contains(body, []byte("Pain & fever.")) || !bytes.Contains(body, []byte("\n  \"index\": 7")) {
		t.Fatalf("artifact should be indented and unescaped: %s", body)
	}
	var art contract.BlockArtifact
	if err := json.Unmarshal(body, &art); err != nil {
		t.Fatalf("artifact json: %v", err)
	}
	if art.Index != 7 || art.Timestamp != "2024-03-09 14:05:06" || len(art.QAPairs) != 2 {
		t.Fatalf("unexpected artifact %#v", art)
	}
	if art.OriginalText != "Aspirin is used to reduce fever and relieve mild to moderate pain...." {
		t.Fatalf("unexpected snippet %q", art.OriginalText)
	}
}

func TestGenerateSnippetTruncated(t *testing.T) {
	w := &memWriter{}
	s := newSynth(t, &stubLLM{text: `[{"text_input":"q","output":"a"}]`}, w)
	long := strings.Repeat("word ", 100)
	if _, err := s.Generate(context.Background(), long, 1); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var art contract.BlockArtifact
	_ = json.Unmarshal(w.files["qa_pairs_1.json"], &art)
	if n := len([]rune(art.OriginalText)); n != 203 || !strings.HasSuffix(art.OriginalText, "...") {
		t.Fatalf("snippet should be 200 runes + ...: %d %q", n, art.OriginalText)
	}
}

// 非英文不调用接口、不写文件
func TestGenerateNonEnglish(t *testing.T) {
	llm := &stubLLM{}
	w := &memWriter{}
	s := newSynth(t, llm, w)
	_, err := s.Generate(context.Background(), "阿司匹林用于缓解疼痛和退烧。", 2)
	if !errors.Is(err, contract.ErrNonEnglish) || errors.Is(err, contract.ErrSynthesis) {
		t.Fatalf("want ErrNonEnglish only, got %v", err)
	}
	if llm.calls != 0 || len(w.files) != 0 {
		t.Fatalf("no api call or file expected: calls=%d files=%d", llm.calls, len(w.files))
	}
}

func TestGenerateFailures(t *testing.T) {
	cases := []struct {
		name  string
		llm   *stubLLM
		wErr  error
		cause error
	}{
		{"api error", &stubLLM{err: contract.ErrRateLimited}, nil, contract.ErrRateLimited},
		{"refusal", &stubLLM{text: "I cannot help with that."}, nil, contract.ErrNoJSONArray},
		{"bad json", &stubLLM{text: "[not json]"}, nil, contract.ErrResponseInvalid},
		{"empty array", &stubLLM{text: "[]"}, nil, contract.ErrResponseInvalid},
		{"write error", &stubLLM{text: `[{"text_input":"q","output":"a"}]`}, contract.ErrPathInvalid, contract.ErrPathInvalid},
	}
	for _, tt := range cases {
		w := &memWriter{err: tt.wErr}
		s := newSynth(t, tt.llm, w)
		pairs, err := s.Generate(context.Background(), english, 3)
		if pairs != nil {
			t.Fatalf("%s: expect no pairs", tt.name)
		}
		if !errors.Is(err, contract.ErrSynthesis) || !errors.Is(err, tt.cause) {
			t.Fatalf("%s: want synthesis+%v, got %v", tt.name, tt.cause, err)
		}
		if len(w.files) != 0 {
			t.Fatalf("%s: no artifact expected", tt.name)
		}
	}
}

func TestNewMissingComponent(t *testing.T) {
	if _, err := New(Components{}, Options{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
	if ArtifactName(12) != "qa_pairs_12.json" {
		t.Fatalf("artifact name")
	}
}
