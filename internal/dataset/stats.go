package dataset

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"qagen/pkg/contract"
)

// Stats 为单列描述统计：样本标准差，分位数线性插值；空列时除 Count 外均为 NaN。
type Stats struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	P25    float64
	Median float64
	P75    float64
	Max    float64
}

// Describe 计算 vals 的描述统计。
func Describe(vals []int) Stats {
	n := len(vals)
	s := Stats{Count: n}
	if n == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.P25, s.Median, s.P75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	xs := make([]float64, n)
	var sum float64
	for i, v := range vals {
		xs[i] = float64(v)
		sum += xs[i]
	}
	sort.Float64s(xs)
	s.Mean = sum / float64(n)
	s.Std = math.NaN()
	if n > 1 {
		var ss float64
		for _, x := range xs {
			ss += (x - s.Mean) * (x - s.Mean)
		}
		s.Std = math.Sqrt(ss / float64(n-1))
	}
	s.Min, s.Max = xs[0], xs[n-1]
	s.P25, s.Median, s.P75 = quantile(xs, 0.25), quantile(xs, 0.5), quantile(xs, 0.75)
	return s
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Summary 汇总两列统计。
type Summary struct {
	Rows   int
	Input  Stats
	Output Stats
}

// Summarize 对 rows 的两列词数做描述统计。
func Summarize(rows []contract.DatasetRow) Summary {
	in := make([]int, len(rows))
	out := make([]int, len(rows))
	for i, r := range rows {
		in[i], out[i] = r.InputWordCount, r.OutputWordCount
	}
	return Summary{Rows: len(rows), Input: Describe(in), Output: Describe(out)}
}

// PrintPreview 打印前 n 行，长文本截断为 40 字符。
func PrintPreview(w io.Writer, rows []contract.DatasetRow, n int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\t"+strings.Join(Header, "\t"))
	for i, r := range rows {
		if i >= n {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", i, clip(r.Input, 40), clip(r.Output, 40), r.InputWordCount, r.OutputWordCount)
	}
	_ = tw.Flush()
}

// PrintStats 以 describe 样式打印统计表。
func PrintStats(w io.Writer, s Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tinput_word_count\toutput_word_count\t")
	fmt.Fprintf(tw, "count\t%d\t%d\t\n", s.Input.Count, s.Output.Count)
	line := func(name string, a, b float64) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", name, num(a), num(b))
	}
	line("mean", s.Input.Mean, s.Output.Mean)
	line("std", s.Input.Std, s.Output.Std)
	line("min", s.Input.Min, s.Output.Min)
	line("25%", s.Input.P25, s.Output.P25)
	line("50%", s.Input.Median, s.Output.Median)
	line("75%", s.Input.P75, s.Output.P75)
	line("max", s.Input.Max, s.Output.Max)
	_ = tw.Flush()
}

func num(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return fmt.Sprintf("%.6f", f)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
