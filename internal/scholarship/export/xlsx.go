package export

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

const sheetName = "Disbursements"

// XLSX renders the register as an Excel workbook.
type XLSX struct{}

func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSX) FileExtension() string { return "xlsx" }

// Render builds the workbook in memory and streams it out.
func (XLSX) Render(w http.ResponseWriter, records []scholarship.RecordWithScholar) error {
	buf, err := BuildRegisterXLSX(records)
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// BuildRegisterXLSX produces the disbursement register workbook.
func BuildRegisterXLSX(records []scholarship.RecordWithScholar) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeRow(f, 1, headerRowValues()); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(registerHeaders), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, err
	}

	for i, rec := range records {
		if err := writeRow(f, i+2, toCells(registerRow(rec))); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "L", 16); err != nil {
		return nil, err
	}
	return f.WriteToBuffer()
}

func headerRowValues() []any {
	return toCells(registerHeaders)
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRow(f *excelize.File, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("export: cell %d/%d: %w", col+1, row, err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return err
		}
	}
	return nil
}
