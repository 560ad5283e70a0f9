package diag

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：单行 JSON，经 zap 写入轮转文件。
// nil *Logger 上的所有方法均为 no-op，便于测试与可选注入。
type Logger struct {
	z    *zap.Logger
	sink io.Closer
}

// NewLogger 按 level 初始化，日志写入 dir/qagen-current.txt，10MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(filepath.Clean(dir), 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 WriteSyncer（测试用 bytes.Buffer 可经 zapcore.AddSync 包装）。
func NewLoggerTo(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.EncodeTime = func(t time.Time, pe zapcore.PrimitiveArrayEncoder) {
		pe.AppendString(t.UTC().Format(time.RFC3339))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, parseLevel(level))
	// sink 写失败时退回 stderr
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close 刷新并关闭底层文件。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// fields 组装标准事件字段；block<=0 表示与块无关。
func fields(comp, stage string, block int, kv map[string]string, extra ...zap.Field) []zap.Field {
	fs := make([]zap.Field, 0, 4+len(extra))
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if block > 0 {
		fs = append(fs, zap.Int("block", block))
	}
	fs = append(fs, extra...)
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", redact(kv)))
	}
	return fs
}

// redact 将疑似密钥的键值替换为占位符。
func redact(kv map[string]string) map[string]string {
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		if isSecretKey(k) {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range []string{"api_key", "apikey", "token", "secret", "password", "authorization"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, 0, nil)
}

// StartWith 记录带块序号与键值的 start。
func (l *Logger) StartWith(comp, msg string, block int, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, fields(comp, "start", block, kv)...)
	return &Timer{l: l, comp: comp, block: block, t0: time.Now()}
}

// Info 记录一般事件。
func (l *Logger) Info(comp, msg string, block int, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Info(msg, fields(comp, "info", block, kv)...)
}

// Debug 仅在 level=debug 时输出。
func (l *Logger) Debug(comp, msg string, block int, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Debug(msg, fields(comp, "debug", block, kv)...)
}

// Warn 记录可恢复的异常（例如跳过块）。
func (l *Logger) Warn(comp string, code Code, msg string, block int) {
	if l == nil {
		return
	}
	l.z.Warn(msg, fields(comp, "warn", block, nil, zap.String("code", string(code)))...)
}

// Error 记录 error 事件，code 由 Classify(err) 得出。
func (l *Logger) Error(comp string, err error, msg string, block int, kv map[string]string) {
	if l == nil {
		return
	}
	extra := []zap.Field{zap.String("code", string(Classify(err)))}
	if err != nil {
		extra = append(extra, zap.String("error", err.Error()))
	}
	l.z.Error(msg, fields(comp, "error", block, kv, extra...)...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	block int
	t0    time.Time
}

// Finish 记录 finish；count 为本阶段产出数量。
func (t *Timer) Finish(msg string, count int) {
	if t == nil || t.l == nil {
		return
	}
	t.l.z.Info(msg, fields(t.comp, "finish", t.block, nil,
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Int("count", count))...)
}

// Fail 记录带耗时的 error，并返回耗时供指标使用。
func (t *Timer) Fail(err error, msg string, kv map[string]string) time.Duration {
	if t == nil || t.l == nil {
		return 0
	}
	d := time.Since(t.t0)
	if kv == nil {
		kv = map[string]string{}
	}
	kv["dur_ms"] = strconv.FormatInt(d.Milliseconds(), 10)
	t.l.Error(t.comp, err, msg, t.block, kv)
	return d
}

// Elapsed 返回自 start 以来的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
