// Package export renders disbursement registers in download formats.
package export

import (
	"strconv"
	"time"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

var registerHeaders = []string{
	"Enrollment", "Scholar", "Department", "Month", "Year", "Days",
	"Deducted Days", "Total Pay", "Pay Per Day", "Final Amount", "Status",
	"Updated At",
}

func registerRow(rec scholarship.RecordWithScholar) []string {
	return []string{
		rec.Enrollment,
		rec.ScholarName,
		rec.Department,
		time.Month(rec.Period.Month).String(),
		strconv.Itoa(rec.Period.Year),
		strconv.Itoa(rec.Days),
		strconv.Itoa(rec.DeductedDays),
		rec.TotalPay.StringFixed(2),
		rec.PayPerDay.StringFixed(2),
		rec.FinalAmount.StringFixed(2),
		string(rec.Status),
		rec.UpdatedAt.Format("2006-01-02"),
	}
}
