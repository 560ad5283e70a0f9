package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总单次运行的计数器，注册在私有 Registry 上。
// nil *Metrics 的方法均为 no-op。
type Metrics struct {
	reg    *prometheus.Registry
	blocks *prometheus.CounterVec
	pairs  prometheus.Counter
	errs   *prometheus.CounterVec
	llmDur prometheus.Histogram
}

// NewMetrics 构造并注册全部指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qagen_blocks_total",
			Help: "Content blocks processed, by result",
		}, []string{"result"}),
		pairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qagen_qa_pairs_total",
			Help: "Question/answer pairs accepted",
		}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qagen_errors_total",
			Help: "Errors by component and classification code",
		}, []string{"comp", "code"}),
		llmDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qagen_llm_duration_seconds",
			Help:    "Latency of generative API calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	m.reg.MustRegister(m.blocks, m.pairs, m.errs, m.llmDur)
	return m
}

// Registry 暴露底层 Registry（测试与导出用）。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Block 记录一个块的结果：success|failed|skipped。
func (m *Metrics) Block(result string) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(result).Inc()
}

// Pairs 累加接受的问答数量。
func (m *Metrics) Pairs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pairs.Add(float64(n))
}

// Error 按分类累加错误计数。
func (m *Metrics) Error(comp string, code Code) {
	if m == nil {
		return
	}
	m.errs.WithLabelValues(comp, string(code)).Inc()
}

// ObserveLLM 记录一次接口调用耗时。
func (m *Metrics) ObserveLLM(d time.Duration) {
	if m == nil {
		return
	}
	m.llmDur.Observe(d.Seconds())
}

// WriteFile 以 Prometheus 文本格式写出全部指标（node_exporter textfile 格式）。
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
