package textclean

import (
	"regexp"
	"strings"
)

// rule: 单个替换步骤。
type rule struct {
	re   *regexp.Regexp
	repl string
}

func del(expr string) rule { return rule{re: regexp.MustCompile(expr)} }

// RE2 的 \s 只含 ASCII 空白；space 额外覆盖 \v、U+001C~001F、NEL 与 Unicode 空格（NBSP、全角空格等）。
const (
	space    = `[\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`
	nonSpace = `[^\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`
)

// passes 的顺序有意义：后续步骤清理前序删除留下的残留（如双句号）。
var passes = []rule{
	// 不良事件上报样板：report 可跨行直到电话号码
	del(`(?is)report.*?FDA.*?1-\d{3}-\d{3}-\d{4}\.?`),
	del(`(?i)contact.*?FDA.*?\.`),
	del(`(?i)call.*?FDA.*?\.`),
	// fda.gov 引导
	del(`(?i)visit.*?fda\.gov.*?\.`),
	del(`www\.fda\.gov` + nonSpace + `*`),
	// 独立电话号码
	del(`1-\d{3}-\d{3}-\d{4}`),
	// 换行与空白
	{re: regexp.MustCompile(`\n+`), repl: " "},
	{re: regexp.MustCompile(space + `+`), repl: " "},
	// 通用 URL
	del(`http` + nonSpace + `+|www\.` + nonSpace + `+`),
	// 其余固定 FDA 句式
	del(`(?i)Report problems to FDA[^.]*\.`),
	del(`(?i)FDA recommends[^.]*\.`),
	del(`(?i)FDA advises[^.]*\.`),
	del(`(?i)FDA encourages[^.]*\.`),
	// 收尾：空白与标点
	{re: regexp.MustCompile(space + `+`), repl: " "},
	{re: regexp.MustCompile(`\.{2,}`), repl: "."},
	{re: regexp.MustCompile(space + `+\.`), repl: "."},
}

// maxRounds: 不动点迭代上限。每轮只会缩短文本或把空白替换为空格，实际 2~3 轮即收敛。
const maxRounds = 16

// Clean 去除监管样板、联系方式、URL 与空白噪声。
// 整套步骤重复执行直到输出稳定，因此 Clean(Clean(x)) == Clean(x)。
func Clean(text string) string {
	cur := cleanOnce(text)
	for i := 0; i < maxRounds; i++ {
		next := cleanOnce(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

func cleanOnce(text string) string {
	for _, p := range passes {
		text = p.re.ReplaceAllLiteralString(text, p.repl)
	}
	return strings.TrimSpace(text)
}

// Truncate 按 rune 截取前 n 个字符；n<=0 时返回原文。
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
