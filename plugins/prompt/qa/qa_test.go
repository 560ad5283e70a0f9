package qa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qagen/pkg/contract"
)

// TestBuildDefault 默认模板
func TestBuildDefault(t *testing.T) {
	b, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := b.Build(context.Background(), "Aspirin reduces fever.")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	tp, ok := p.(contract.TextPrompt)
	if !ok {
		t.Fatalf("unexpected prompt %#v", p)
	}
	s := string(tp)
	if !strings.Contains(s, "Generate 3 medical question-answer pairs") || !strings.Contains(s, "Aspirin reduces fever.") {
		t.Fatalf("prompt 内容错误: %s", s)
	}
	if !strings.Contains(s, `"text_input"`) || !strings.Contains(s, `"output"`) {
		t.Fatalf("缺少输出格式说明: %s", s)
	}
	want := `    [
      {"text_input": "question1", "output": "answer1"},
      {"text_input": "question2", "output": "answer2"},
      {"text_input": "question3", "output": "answer3"}
    ]`
	if !strings.HasSuffix(s, want) {
		t.Fatalf("格式示例错误: %s", s)
	}
}

// TestBuildExampleMatchesCount 格式示例条目数随 pairs_per_block 变化
func TestBuildExampleMatchesCount(t *testing.T) {
	for _, n := range []int{1, 5} {
		b, err := New(&Options{PairsPerBlock: n})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		p, err := b.Build(context.Background(), "Aspirin reduces fever.")
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		s := string(p.(contract.TextPrompt))
		if got := strings.Count(s, `"text_input":`); got != n {
			t.Fatalf("n=%d 示例条目数=%d: %s", n, got, s)
		}
		if !strings.HasSuffix(s, "}\n    ]") {
			t.Fatalf("数组收尾错误: %q", s)
		}
		if strings.Contains(s, "},\n    ]") {
			t.Fatalf("末项不应带逗号: %q", s)
		}
	}
}

// TestBuildTruncates 文本按字符截断
func TestBuildTruncates(t *testing.T) {
	b, _ := New(&Options{InlineTemplate: "{{.Text}}", MaxChars: 4})
	p, err := b.Build(context.Background(), "ééééé-tail")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := string(p.(contract.TextPrompt)); got != "éééé" {
		t.Fatalf("截断错误: %q", got)
	}
}

// TestBuildTemplatePath 模板文件与数量
func TestBuildTemplatePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tpl.txt")
	if err := os.WriteFile(path, []byte("n={{.Count}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := New(&Options{TemplatePath: path, PairsPerBlock: 5})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, _ := b.Build(context.Background(), "x")
	if string(p.(contract.TextPrompt)) != "n=5" {
		t.Fatalf("unexpected %v", p)
	}
	if _, err := New(&Options{TemplatePath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("缺失模板应失败")
	}
	if _, err := New(&Options{InlineTemplate: "{{.Broken"}); err == nil {
		t.Fatalf("非法模板应失败")
	}
}

// TestBuildSchema JSON 模式附带 schema 消息
func TestBuildSchema(t *testing.T) {
	b, _ := New(&Options{JSONSchema: true})
	p, err := b.Build(context.Background(), "x")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp, ok := p.(contract.ChatPrompt)
	if !ok || len(cp) != 2 || cp[1].Role != "json_schema" {
		t.Fatalf("unexpected prompt %#v", p)
	}
}

// TestBuildEmpty 空文本
func TestBuildEmpty(t *testing.T) {
	b, _ := New(nil)
	if _, err := b.Build(context.Background(), "  "); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled got %v", err)
	}
}
