// Package dataset 将累计的问答 JSON 整理为训练用表格（CSV，可选 XLSX）。
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"qagen/pkg/contract"
)

// Header 为表格列顺序。
var Header = []string{"input", "output", "input_word_count", "output_word_count"}

// record: 宽松形状；字段缺失或类型不符的条目在 Rows 中被丢弃。
type record struct {
	TextInput *string `json:"text_input"`
	Output    *string `json:"output"`
}

// Load 读取 {"qa_pairs":[...]} 文件并返回可用的问答对。
// 文件缺失返回 ErrInputMissing；顶层不是对象或 qa_pairs 不是数组返回 ErrInputMalformed。
// 单条记录形状不符时静默丢弃。
func Load(path string) ([]contract.QAPair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, contract.ErrInputMissing)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse 同 Load，输入为内存字节。
func Parse(b []byte) ([]contract.QAPair, error) {
	var top struct {
		QAPairs []json.RawMessage `json:"qa_pairs"`
	}
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("%v: %w", err, contract.ErrInputMalformed)
	}
	out := make([]contract.QAPair, 0, len(top.QAPairs))
	for _, raw := range top.QAPairs {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil || r.TextInput == nil || r.Output == nil {
			continue
		}
		out = append(out, contract.QAPair{TextInput: *r.TextInput, Output: *r.Output})
	}
	return out, nil
}

// Rows 投影为 DatasetRow：两侧去除首尾空白，任一为空则丢弃；词数按空白切分计数。
func Rows(pairs []contract.QAPair) []contract.DatasetRow {
	rows := make([]contract.DatasetRow, 0, len(pairs))
	for _, p := range pairs {
		in, out := strings.TrimSpace(p.TextInput), strings.TrimSpace(p.Output)
		if in == "" || out == "" {
			continue
		}
		rows = append(rows, contract.DatasetRow{
			Input:           in,
			Output:          out,
			InputWordCount:  len(strings.Fields(in)),
			OutputWordCount: len(strings.Fields(out)),
		})
	}
	return rows
}

// WriteCSV 写出带表头的 UTF-8 CSV。
func WriteCSV(w io.Writer, rows []contract.DatasetRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Input, r.Output, strconv.Itoa(r.InputWordCount), strconv.Itoa(r.OutputWordCount)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeArtifact 先在内存中编码，再交给 Writer 原子落盘。
func writeArtifact(ctx context.Context, w contract.Writer, id contract.ArtifactID, encode func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := w.Write(ctx, id, &buf); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}
