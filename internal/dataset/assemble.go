package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"qagen/internal/diag"
	"qagen/pkg/contract"
)

// Options 为第二阶段整理的参数。
type Options struct {
	// Input: 问答 JSON 路径，默认 final_filtered_qa.json。
	Input string
	// Format: csv|xlsx|both，默认 csv。
	Format string
	// Now: 时钟（文件名中的日期），默认 time.Now。
	Now func() time.Time
	// Out: 操作员输出，默认 os.Stdout。
	Out     io.Writer
	Logger  *diag.Logger
	Metrics *diag.Metrics
}

// FileName 返回 training_data_YYYYMMDD.<ext>。
func FileName(now time.Time, ext string) string {
	return "training_data_" + now.Format("20060102") + "." + ext
}

// Result 为一次整理的结果。
type Result struct {
	Files   []contract.ArtifactID
	Summary Summary
}

// Assemble 执行 Load → Rows → 写出 → 打印行数、预览与统计。
func Assemble(ctx context.Context, w contract.Writer, o Options) (Result, error) {
	var res Result
	if o.Input == "" {
		o.Input = "final_filtered_qa.json"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	format := strings.ToLower(strings.TrimSpace(o.Format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" && format != "both" {
		return res, fmt.Errorf("dataset format %q: %w", o.Format, contract.ErrInvalidInput)
	}

	tm := o.Logger.Start("dataset", "assemble")
	pairs, err := Load(o.Input)
	if err != nil {
		tm.Fail(err, "load failed", map[string]string{"input": o.Input})
		o.Metrics.Error("dataset", diag.Classify(err))
		return res, err
	}
	rows := Rows(pairs)
	now := o.Now()

	if format == "csv" || format == "both" {
		id := contract.ArtifactID(FileName(now, "csv"))
		if err := writeArtifact(ctx, w, id, func(dst io.Writer) error { return WriteCSV(dst, rows) }); err != nil {
			tm.Fail(err, "csv write failed", nil)
			return res, err
		}
		res.Files = append(res.Files, id)
	}
	if format == "xlsx" || format == "both" {
		id := contract.ArtifactID(FileName(now, "xlsx"))
		if err := writeArtifact(ctx, w, id, func(dst io.Writer) error { return WriteXLSX(dst, rows) }); err != nil {
			tm.Fail(err, "xlsx write failed", nil)
			return res, err
		}
		res.Files = append(res.Files, id)
	}
	res.Summary = Summarize(rows)
	tm.Finish("assemble", len(rows))

	for _, f := range res.Files {
		fmt.Fprintf(o.Out, "Conversion complete! Saved as: %s\n", f)
	}
	fmt.Fprintf(o.Out, "Total rows: %d\n", len(rows))
	fmt.Fprintln(o.Out, "\nData preview:")
	PrintPreview(o.Out, rows, 5)
	fmt.Fprintln(o.Out, "\nBasic statistics:")
	PrintStats(o.Out, res.Summary)
	return res, nil
}
