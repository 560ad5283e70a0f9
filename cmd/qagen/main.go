package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	cfgpkg "qagen/internal/config"
	"qagen/internal/dataset"
	"qagen/internal/diag"
	"qagen/internal/pipeline"
)

var (
	pipelineRun = pipeline.Run
	datasetRun  = dataset.Assemble
)

// 退出码：0 成功；1 运行失败；2 用法错误；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitUsage  = 2
	exitConfig = 3
)

const usage = `用法:
  qagen [collect] [旗标]     读取内容块并生成问答对（默认子命令）
  qagen dataset [旗标]       将问答 JSON 整理为训练表格（CSV/XLSX）
  qagen --init-config [目录]  生成默认 config.json 与 .env 模板（不覆盖）
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// common 为两个子命令共享的旗标。
type common struct {
	config   string
	initDir  string
	logLevel string
	status   bool
}

func bindCommon(fs *flag.FlagSet, c *common) {
	fs.StringVar(&c.config, "config", "", "配置文件路径（.json/.yaml）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	fs.StringVar(&c.initDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（若已存在则跳过，不覆盖）；不带值时默认当前目录")
	fs.StringVar(&c.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	fs.BoolVar(&c.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 逐块输出")
}

func run(args []string) int {
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	args = normalizeInitArg(args)

	sub := "collect"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "collect":
		return runCollect(corrID, args)
	case "dataset":
		return runDataset(corrID, args)
	case "help":
		fprintf(os.Stdout, "%s", usage)
		return exitOK
	default:
		fprintf(os.Stderr, "未知子命令 %q\n%s", sub, usage)
		return exitUsage
	}
}

func runCollect(corrID string, args []string) int {
	var (
		c           common
		flagInput   string
		flagOut     string
		flagLLM     string
		flagDelayMS int
		flagPairs   int
	)
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	bindCommon(fs, &c)
	fs.StringVar(&flagInput, "input", "", "content_list.json 路径，\"-\" 表示 STDIN（覆盖配置）")
	fs.StringVar(&flagOut, "output-dir", "", "产物输出目录（覆盖配置）")
	fs.StringVar(&flagLLM, "llm", "", "provider 名称（覆盖配置）")
	// delay-ms 允许显式设置为 0；默认 -1 表示“未覆盖”。
	fs.IntVar(&flagDelayMS, "delay-ms", -1, "块间等待毫秒数（覆盖配置；0 表示不等待）")
	fs.IntVar(&flagPairs, "pairs", 0, "每块问答对数量（覆盖配置）")
	if err := fs.Parse(args); err != nil {
		return parseExit(err)
	}
	if c.initDir != "" {
		return initConfig(strings.TrimSpace(c.initDir))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		fprintf(os.Stderr, "配置解析失败: %v\n", err)
		return exitConfig
	}
	// CLI 覆盖
	overCLI := cfgpkg.Config{DelayMS: flagDelayMS}
	overCLI.Input = flagInput
	overCLI.OutputDir = flagOut
	overCLI.LLM = flagLLM
	overCLI.Logging.Level = c.logLevel
	if flagPairs > 0 {
		overCLI.PairsPerBlock = flagPairs
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		return exitConfig
	}

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	// 预检：输出目录可写
	if err := preflightCheckOutputDir(cfg.OutputDir); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("config", err, "preflight failed", 0, map[string]string{"output_dir": cfg.OutputDir})
		return exitConfig
	}

	met := diag.NewMetrics()
	comp, set, err := cfgpkg.Assemble(cfg, logger, met)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", err, "assemble failed", 0, nil)
		return exitConfig
	}
	set.Terminal = diag.NewTerminal(os.Stderr, c.status)
	logger.Debug("config", "effective", 0, effectiveKV(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, comp, set, logger)
	writeMetrics(logger, met, cfg.Metrics.File)
	if len(rep.Failed) > 0 || len(rep.Skipped) > 0 {
		logger.Info("pipeline", "block outcome", 0, map[string]string{
			"failed":  joinInts(rep.Failed),
			"skipped": joinInts(rep.Skipped),
		})
	}
	if err != nil {
		t.Fail(err, "run failed", nil)
		met.Error("pipeline", diag.Classify(err))
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		return exitRun
	}
	t.Finish("run", rep.Result.TotalQAPairs)
	return exitOK
}

func runDataset(corrID string, args []string) int {
	var (
		c          common
		flagInput  string
		flagOut    string
		flagFormat string
	)
	fs := flag.NewFlagSet("dataset", flag.ContinueOnError)
	bindCommon(fs, &c)
	fs.StringVar(&flagInput, "input", "", "问答 JSON 路径（覆盖 dataset.input）")
	fs.StringVar(&flagOut, "output-dir", "", "训练表格输出目录（覆盖 dataset.output_dir）")
	fs.StringVar(&flagFormat, "format", "", "csv|xlsx|both（覆盖 dataset.format）")
	if err := fs.Parse(args); err != nil {
		return parseExit(err)
	}
	if c.initDir != "" {
		return initConfig(strings.TrimSpace(c.initDir))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		fprintf(os.Stderr, "配置解析失败: %v\n", err)
		return exitConfig
	}
	over := cfgpkg.Config{DelayMS: -1}
	over.Dataset = cfgpkg.Dataset{Input: flagInput, OutputDir: flagOut, Format: flagFormat}
	over.Logging.Level = c.logLevel
	cfg = cfgpkg.Merge(cfg, over)

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	met := diag.NewMetrics()
	w, opts, err := cfgpkg.AssembleDataset(cfg, logger, met)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", err, "assemble failed", 0, nil)
		return exitConfig
	}
	opts.Out = os.Stdout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = datasetRun(ctx, w, opts)
	writeMetrics(logger, met, cfg.Metrics.File)
	if err != nil {
		met.Error("dataset", diag.Classify(err))
		fprintf(os.Stderr, "整理失败: %v\n", err)
		return exitRun
	}
	return exitOK
}

func parseExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	return exitUsage
}

// loadConfig 按 默认 < 文件 < QAGEN_CONFIG_JSON < ENV 合并；CLI 覆盖由调用方完成。
func loadConfig(c common) (cfgpkg.Config, error) {
	path := c.config
	if path == "" {
		path = os.Getenv("QAGEN_CONFIG_FILE")
	}
	// 默认读取工作目录下 config.json / config.yaml（若存在）
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	if s := os.Getenv("QAGEN_CONFIG_JSON"); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, fmt.Errorf("QAGEN_CONFIG_JSON: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	return cfgpkg.Merge(cfg, overEnv), nil
}

func initConfig(dir string) int {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
		if !errors.Is(err, os.ErrExist) {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			return exitConfig
		}
		fprintf(os.Stderr, "提示：%s 已存在（已跳过）\n", cfgPath)
	}
	// 生成 .env 模板（不覆盖已存在文件）。
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return exitOK
}

// effectiveKV 输出运行时配置摘要（不含密钥）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"input":            cfg.Input,
		"output_dir":       cfg.OutputDir,
		"delay_ms":         strconv.Itoa(cfg.DelayMS),
		"max_prompt_chars": strconv.Itoa(cfg.MaxPromptChars),
		"pairs_per_block":  strconv.Itoa(cfg.PairsPerBlock),
		"llm":              cfg.LLM,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		kv["rpm"] = strconv.Itoa(p.Limits.RPM)
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	return kv
}

func writeMetrics(logger *diag.Logger, met *diag.Metrics, path string) {
	if path == "" {
		return
	}
	if err := met.WriteFile(path); err != nil {
		logger.Error("metrics", err, "write failed", 0, map[string]string{"file": path})
	}
}

func joinInts(xs []int) string {
	ss := make([]string, len(xs))
	for i, x := range xs {
		ss[i] = strconv.Itoa(x)
	}
	return strings.Join(ss, ",")
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// writeConfig 写出配置；"-" 表示 stdout。已存在的文件不覆盖（返回 os.ErrExist）。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；key/value 去首尾空白。
// - 若 value 被成对的单/双引号包裹，则去除外层引号；双引号内常见转义 \n/\t/\\/\" 作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用当前目录 "."。
// 兼容以下形式：
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
//
// 仅在检测到“裸开关或后继为下一个开关”的情况下插入默认值。
func normalizeInitArg(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for i, a := range args {
		out = append(out, a)
		if a != "--init-config" && a != "-init-config" {
			continue
		}
		if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
			out = append(out, ".")
		}
	}
	return out
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# qagen .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("QAGEN_CONFIG_FILE=\n")
	b.WriteString("QAGEN_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUT", "OUTPUT_DIR", "DELAY_MS", "MAX_PROMPT_CHARS", "SNIPPET_CHARS", "PAIRS_PER_BLOCK", "LLM", "LOG_LEVEL", "LOG_DIR", "METRICS_FILE"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 训练表格\n")
	for _, k := range []string{"DATASET_INPUT", "DATASET_OUTPUT_DIR", "DATASET_FORMAT"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	for _, p := range []string{"gemini", "openai"} {
		fmt.Fprintf(&b, "\n# Provider 覆盖（%s）\n", p)
		for _, f := range []string{"CLIENT", "LIMITS_RPM", "OPTIONS_JSON"} {
			fmt.Fprintf(&b, "%sPROVIDER__%s__%s=\n", cfgpkg.EnvPrefix, p, f)
		}
	}
	// 由 Provider 客户端读取，不经 QAGEN_ 前缀
	b.WriteString("\n# 供应商 API Key\n")
	b.WriteString("GEMINI_API_KEY=\n")
	b.WriteString("OPENAI_API_KEY=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 启动前检查输出目录可写性。
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
func preflightCheckOutputDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	// 目录不存在：检查最近的已存在祖先可写性
	parent := filepath.Dir(filepath.Clean(dir))
	for {
		pst, err := os.Stat(parent)
		if err == nil {
			if !pst.IsDir() {
				return fmt.Errorf("父路径不是目录: %s", parent)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
