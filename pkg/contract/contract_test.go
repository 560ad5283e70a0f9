package contract

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestBatchResultConsistent 验证计数不变量。
func TestBatchResultConsistent(t *testing.T) {
	cases := []struct {
		name string
		r    BatchResult
		want bool
	}{
		{"空", BatchResult{}, true},
		{"正常", BatchResult{TotalItems: 3, SuccessfulItems: 1, FailedItems: 1, SkippedItems: 1, TotalQAPairs: 1, QAPairs: []QAPair{{}}}, true},
		{"计数不符", BatchResult{TotalItems: 3, SuccessfulItems: 1}, false},
		{"问答数不符", BatchResult{TotalQAPairs: 2}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Consistent(); got != tt.want {
				t.Fatalf("Consistent()=%v want %v", got, tt.want)
			}
		})
	}
}

// TestJSONFieldNames 验证文件格式中的字段名。
func TestJSONFieldNames(t *testing.T) {
	b, err := json.Marshal(BatchResult{TotalItems: 1, QAPairs: []QAPair{{TextInput: "q", Output: "a", Index: 1, Timestamp: "t"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"total_items"`, `"successful_items"`, `"failed_items"`, `"skipped_items"`, `"total_qa_pairs"`, `"qa_pairs"`, `"text_input"`, `"output"`, `"index"`, `"timestamp"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("缺少字段 %s: %s", key, b)
		}
	}
	b, _ = json.Marshal(BlockArtifact{Index: 2, OriginalText: "x..."})
	if !strings.Contains(string(b), `"original_text":"x..."`) {
		t.Fatalf("BlockArtifact 字段错误: %s", b)
	}
}
