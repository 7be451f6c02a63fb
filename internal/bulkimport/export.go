package bulkimport

import (
	"io"
	"strconv"
	"strings"

	"github.com/ignite/loadboard/internal/domain"
)

var skippedHeader = []string{
	"rowNumber", "errorReasons", "title", "equipmentType", "origin",
	"destination", "pickupDate", "deliveryDate", "rate",
}

// WriteSkippedRows writes the invalid and duplicate rows as CSV with every
// field quoted. It returns how many rows were written.
func WriteSkippedRows(w io.Writer, rows []domain.NormalizedRow) (int, error) {
	if err := writeQuoted(w, skippedHeader); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if !r.Skipped() {
			continue
		}
		rate := ""
		if r.Rate != nil {
			rate = strconv.FormatFloat(*r.Rate, 'f', -1, 64)
		}
		err := writeQuoted(w, []string{
			strconv.Itoa(r.RowNumber),
			strings.Join(r.Errors, "; "),
			r.Title,
			deref(r.EquipmentType),
			deref(r.Origin),
			deref(r.Destination),
			deref(r.PickupDate),
			deref(r.DeliveryDate),
			rate,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// writeQuoted writes one CSV record with every field quoted. encoding/csv
// only quotes when it must.
func writeQuoted(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}
