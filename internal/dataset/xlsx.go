package dataset

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"qagen/pkg/contract"
)

const sheetName = "training_data"

// WriteXLSX 以单工作表写出与 CSV 相同的列；词数列为数值单元格。
func WriteXLSX(w io.Writer, rows []contract.DatasetRow) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	if err := sw.SetRow("A1", head); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []any{r.Input, r.Output, r.InputWordCount, r.OutputWordCount}); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
