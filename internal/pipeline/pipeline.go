// Package pipeline 顺序处理内容块并汇总结果。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"qagen/internal/diag"
	"qagen/internal/rate"
	"qagen/internal/synth"
	"qagen/pkg/contract"
)

// - 单线程：块按位置顺序逐个处理，唯一的挂起点是 Pacer。
// - 块级隔离：单块失败只计入 failed，不影响后续块。
// - 输入失败（缺失/格式错误）立即中止，不产出任何汇总。

// SummaryName 为汇总产物名。
const SummaryName contract.ArtifactID = "all_qa_pairs.json"

// Generator 为单块合成器（synth.Synthesizer 的最小接口）。
type Generator interface {
	Generate(ctx context.Context, text string, index int) ([]contract.QAPair, error)
}

// Components 聚合运行所需的组件。
type Components struct {
	Source contract.ContentSource
	Synth  Generator
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Pacer 在每个调用过接口的块之后执行（成功或失败）；跳过的块不等待。nil 表示不等待。
	Pacer rate.Pacer
	// OutputDir 仅用于终端提示。
	OutputDir string
	// LLM 为所用客户端名，仅用于终端提示。
	LLM      string
	Terminal *diag.Terminal
	Metrics  *diag.Metrics
}

// Run 执行 Source → (Synth → Pacer)* → 汇总写出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.RunReport, error) {
	var rep contract.RunReport
	if comp.Source == nil || comp.Synth == nil || comp.Writer == nil {
		return rep, fmt.Errorf("pipeline: %w: missing component", contract.ErrInvalidInput)
	}
	pacer := set.Pacer
	if pacer == nil {
		pacer = rate.NoWait
	}

	rt := logger.Start("reader", "load")
	blocks, err := comp.Source.Load(ctx)
	if err != nil {
		rt.Fail(err, "load failed", nil)
		set.Metrics.Error("reader", diag.Classify(err))
		return rep, fmt.Errorf("load content: %w", err)
	}
	rt.Finish("load", len(blocks))

	res := &rep.Result
	res.TotalItems = len(blocks)
	set.Terminal.RunStart(len(blocks), set.LLM)

	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		index := i + 1
		pairs, err := comp.Synth.Generate(ctx, b.Content, index)
		switch {
		case errors.Is(err, contract.ErrNonEnglish):
			logger.Warn("pipeline", diag.CodeSkip, "non-english block skipped", index)
			rep.Skipped = append(rep.Skipped, index)
			res.SkippedItems++
			set.Metrics.Block("skipped")
			set.Terminal.Block(index, "skipped", 0)
			continue
		case ctx.Err() != nil:
			// 取消期间的失败不计数
			return rep, ctx.Err()
		case err != nil || len(pairs) == 0:
			rep.Failed = append(rep.Failed, index)
			res.FailedItems++
			set.Metrics.Block("failed")
			set.Terminal.Block(index, "failed", 0)
		default:
			res.QAPairs = append(res.QAPairs, pairs...)
			res.SuccessfulItems++
			set.Metrics.Block("success")
			set.Metrics.Pairs(len(pairs))
			set.Terminal.Block(index, "success", len(pairs))
		}
		if err := pacer.Wait(ctx); err != nil {
			return rep, err
		}
	}
	res.TotalQAPairs = len(res.QAPairs)

	var werr error
	if res.TotalQAPairs > 0 {
		wt := logger.Start("writer", "summary")
		if werr = synth.WriteJSON(ctx, comp.Writer, SummaryName, res); werr != nil {
			wt.Fail(werr, "summary write failed", nil)
			set.Metrics.Error("writer", diag.Classify(werr))
		} else {
			wt.Finish("summary", res.TotalQAPairs)
		}
	}
	set.Terminal.Summary(*res, set.OutputDir)
	logger.Info("pipeline", "done", 0, map[string]string{
		"total":   fmt.Sprint(res.TotalItems),
		"success": fmt.Sprint(res.SuccessfulItems),
		"failed":  fmt.Sprint(res.FailedItems),
		"skipped": fmt.Sprint(res.SkippedItems),
		"pairs":   fmt.Sprint(res.TotalQAPairs),
	})
	return rep, werr
}
