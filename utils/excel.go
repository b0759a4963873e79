package utils

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter builds a workbook sheet by sheet and saves it through a temp
// file rename, so the path never holds a half-written workbook.
type ExcelWriter struct {
	filePath string
	file     *excelize.File
	sheets   int
}

func NewExcelWriter(filePath string) *ExcelWriter {
	return &ExcelWriter{
		filePath: filePath,
		file:     excelize.NewFile(),
	}
}

func (w *ExcelWriter) AddSheet(name string, headers []string, rows [][]interface{}) error {
	if w.sheets == 0 {
		// Reuse the default sheet for the first call.
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("error renaming sheet: %w", err)
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("error creating sheet %s: %w", name, err)
		}
	}
	w.sheets++

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := w.file.SetCellValue(name, cell, h); err != nil {
			return fmt.Errorf("error writing header: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, v := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := w.file.SetCellValue(name, cell, v); err != nil {
				return fmt.Errorf("error writing cell %s!%s: %w", name, cell, err)
			}
		}
	}

	return nil
}

func (w *ExcelWriter) Save() error {
	tmpPath := w.filePath + ".tmp"
	if err := w.file.SaveAs(tmpPath); err != nil {
		return fmt.Errorf("error saving Excel file: %w", err)
	}
	if err := os.Rename(tmpPath, w.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error renaming Excel file: %w", err)
	}
	return nil
}

func (w *ExcelWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
