package export

import (
	"encoding/csv"
	"io"
	"net/http"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

// CSV renders the register as comma separated values.
type CSV struct{}

func (CSV) ContentType() string   { return "text/csv" }
func (CSV) FileExtension() string { return "csv" }

// Render writes the header row followed by one row per record.
func (CSV) Render(w http.ResponseWriter, records []scholarship.RecordWithScholar) error {
	return WriteRegisterCSV(w, records)
}

// WriteRegisterCSV serialises the disbursement register to CSV.
func WriteRegisterCSV(w io.Writer, records []scholarship.RecordWithScholar) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(registerHeaders); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(registerRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
