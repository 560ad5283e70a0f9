package testdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "qagen/internal/config"
	"qagen/internal/pipeline"
	"qagen/pkg/contract"
)

var input = filepath.Join("files", "content_list.json")

func baseConfig(outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Input = input
	cfg.OutputDir = outDir
	cfg.DelayMS = 0
	cfg.Logging.Level = "error"
	cfg.LLM = "mock"
	return cfg
}

func runPipeline(t *testing.T, cfg cfgpkg.Config) (contract.RunReport, error) {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg, nil, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

func readSummary(t *testing.T, outDir string) contract.BatchResult {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(outDir, string(pipeline.SummaryName)))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var res contract.BatchResult
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("summary json: %v", err)
	}
	return res
}

func TestE2ESuccess(t *testing.T) {
	outDir := t.TempDir()
	cfg := baseConfig(outDir)
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: json.RawMessage(`{"prefix":"DEBUG","pairs":2,"response_mode":"wrapped"}`)}
	cfg.PairsPerBlock = 2
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if fmt.Sprint(rep.Skipped) != "[3]" || len(rep.Failed) != 0 {
		t.Fatalf("report: %+v", rep)
	}
	res := readSummary(t, outDir)
	if !res.Consistent() || res.TotalItems != 4 || res.SuccessfulItems != 3 || res.SkippedItems != 1 || res.TotalQAPairs != 6 {
		t.Fatalf("tally: %+v", res)
	}
	for i, p := range res.QAPairs {
		if p.Index == 3 || p.Index < 1 || p.Index > 4 {
			t.Fatalf("pair %d 序号错误: %+v", i, p)
		}
		if p.Timestamp == "" || p.TextInput == "" || p.Output == "" {
			t.Fatalf("pair %d 字段缺失: %+v", i, p)
		}
	}

	// 逐块产物：原文片段已清洗（无 FDA 电话/链接）
	b, err := os.ReadFile(filepath.Join(outDir, "qa_pairs_2.json"))
	if err != nil {
		t.Fatalf("block artifact: %v", err)
	}
	var art contract.BlockArtifact
	if err := json.Unmarshal(b, &art); err != nil {
		t.Fatalf("artifact json: %v", err)
	}
	if art.Index != 2 || strings.Contains(art.OriginalText, "1-800") || !strings.HasSuffix(art.OriginalText, "...") {
		t.Fatalf("artifact: %+v", art)
	}
	b, _ = os.ReadFile(filepath.Join(outDir, "qa_pairs_4.json"))
	if strings.Contains(string(b), "fda.gov") {
		t.Fatalf("链接未清除: %s", b)
	}
}

// 拒答：全部失败，不写汇总。
func TestE2ERefuse(t *testing.T) {
	outDir := t.TempDir()
	cfg := baseConfig(outDir)
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: json.RawMessage(`{"response_mode":"refuse"}`)}
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	r := rep.Result
	if r.FailedItems != 3 || r.SkippedItems != 1 || r.TotalQAPairs != 0 || !r.Consistent() {
		t.Fatalf("tally: %+v", r)
	}
	if _, err := os.Stat(filepath.Join(outDir, string(pipeline.SummaryName))); !os.IsNotExist(err) {
		t.Fatalf("无问答时不应写汇总: %v", err)
	}
}

// 限流与无数组响应仅影响对应块。
func TestE2EFlaky(t *testing.T) {
	outDir := t.TempDir()
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	cfg := baseConfig(outDir)
	cfg.LLM = "flaky"
	cfg.Provider["flaky"] = cfgpkg.Provider{Client: "flaky", Options: json.RawMessage(fmt.Sprintf(`{"log_path":%q}`, logPath))}
	rep, err := runPipeline(t, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if fmt.Sprint(rep.Failed) != "[1 2]" || fmt.Sprint(rep.Skipped) != "[3]" {
		t.Fatalf("report: %+v", rep)
	}
	res := readSummary(t, outDir)
	if res.SuccessfulItems != 1 || res.TotalQAPairs != 1 || res.QAPairs[0].Index != 4 {
		t.Fatalf("tally: %+v", res)
	}
	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("flaky log: %v", err)
	}
	if got := strings.Fields(string(b)); strings.Join(got, ",") != "rate_limited,no_array,ok" {
		t.Fatalf("调用序列: %v", got)
	}
}

func TestE2EMissingInput(t *testing.T) {
	cfg := baseConfig(t.TempDir())
	cfg.Input = filepath.Join("files", "absent.json")
	_, err := runPipeline(t, cfg)
	if err == nil || !strings.Contains(err.Error(), "load content") {
		t.Fatalf("缺失输入应中止: %v", err)
	}
}
