package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"qagen/pkg/contract"
)

// Terminal: 终端信息提示（非日志）。
// - TTY: 进度单行 \r 覆盖；非 TTY: 每块一行。
// - 写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	total    int
	llm      string
	runStart time.Time
	lastLen  int

	mu sync.Mutex
}

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				t.isTTY = fi.Mode()&os.ModeCharDevice != 0
			}
		}
	}
	return t
}

// RunStart 记录块总数与所用 LLM。
func (t *Terminal) RunStart(total int, llm string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.llm = llm
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 内容块=%d | llm=%s", total, safe(llm)))
}

// Block 报告单块结果：status 为 success|failed|skipped。
func (t *Terminal) Block(index int, status string, pairs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	line := fmt.Sprintf("[block] %d/%d | %s | 问答 %d | 用时 %s", index, t.total, status, pairs, formatDur(time.Since(t.runStart)))
	if t.isTTY && status == "success" {
		t.printInline(line)
		return
	}
	t.println(line)
}

// Summary 输出最终统计；无论是否写出汇总文件都会调用。
func (t *Terminal) Summary(r contract.BatchResult, outDir string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println("Processing complete!")
	t.println(fmt.Sprintf("Total content blocks: %d", r.TotalItems))
	t.println(fmt.Sprintf("Successfully processed: %d", r.SuccessfulItems))
	t.println(fmt.Sprintf("Processing failed: %d", r.FailedItems))
	t.println(fmt.Sprintf("Skipped non-English: %d", r.SkippedItems))
	t.println(fmt.Sprintf("Total Q&A pairs generated: %d", r.TotalQAPairs))
	if outDir != "" {
		t.println(fmt.Sprintf("All results saved to %s directory | 总用时 %s", outDir, formatDur(time.Since(t.runStart))))
	}
}

// Printf 供其他子命令输出自由格式信息。
func (t *Terminal) Printf(format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

func (t *Terminal) println(s string) {
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		s = "\r" + strings.Repeat(" ", t.lastLen) + "\r" + s
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if !t.enabled {
		return
	}
	pad := 0
	if l := len([]rune(s)); t.lastLen > l {
		pad = t.lastLen - l
	}
	if _, err := io.WriteString(t.w, "\r"+s+strings.Repeat(" ", pad)); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = len([]rune(s))
}

func safe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
