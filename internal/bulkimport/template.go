package bulkimport

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/ignite/loadboard/internal/domain"
)

var templateHeaders = map[domain.TemplateType][]string{
	domain.TemplateSimple: {"Origin", "Destination", "VehicleType", "Weight", "Price"},
	domain.TemplateStandard: {
		"title", "description", "equipmentType", "vehicleCount",
		"originCity", "originState", "originZip",
		"destinationCity", "destinationState", "destinationZip",
		"pickupDate", "deliveryDate", "rate",
		"contactName", "contactEmail", "contactPhone",
	},
	domain.TemplateComplete: {
		"title", "description", "equipmentType", "vehicleType", "vehicleCount",
		"originAddress", "originCity", "originState", "originZip",
		"destinationAddress", "destinationCity", "destinationState", "destinationZip",
		"pickupDate", "deliveryDate", "weight", "rate",
		"contactName", "contactEmail", "contactPhone", "specialInstructions",
	},
}

// TemplateInfo describes one template for the templates listing.
type TemplateInfo struct {
	Name    domain.TemplateType `json:"name"`
	Headers []string            `json:"headers"`
}

// Templates lists every template in a stable order.
func Templates() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(templateHeaders))
	for _, t := range []domain.TemplateType{domain.TemplateSimple, domain.TemplateStandard, domain.TemplateComplete} {
		out = append(out, TemplateInfo{Name: t, Headers: Headers(t)})
	}
	return out
}

// Headers returns a copy of the exact header contract of t, or nil for an unknown template.
func Headers(t domain.TemplateType) []string {
	h, ok := templateHeaders[t]
	if !ok {
		return nil
	}
	return append([]string(nil), h...)
}

// HeaderLine renders the header contract as a CSV line (used for sample downloads).
func HeaderLine(t domain.TemplateType) string { return strings.Join(templateHeaders[t], ",") }

// HeaderCheck is the outcome of the header contract check.
type HeaderCheck struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// CheckHeader compares the first line of a file to the template header, name
// by name and in order. Each offending column yields one message.
func CheckHeader(firstLine string, t domain.TemplateType) (HeaderCheck, error) {
	want, ok := templateHeaders[t]
	if !ok {
		return HeaderCheck{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, t)
	}
	got := splitHeader(firstLine)

	res := HeaderCheck{Errors: []string{}}
	for i := 0; i < max(len(want), len(got)); i++ {
		col := i + 1
		switch {
		case i >= len(got):
			res.Errors = append(res.Errors, fmt.Sprintf("column %d: missing expected column %q", col, want[i]))
		case i >= len(want):
			res.Errors = append(res.Errors, fmt.Sprintf("column %d: unexpected extra column %q", col, got[i]))
		case got[i] != want[i]:
			res.Errors = append(res.Errors, fmt.Sprintf("column %d: expected %q, found %q", col, want[i], got[i]))
		}
	}
	res.OK = len(res.Errors) == 0
	return res, nil
}

// splitHeader splits a header line on commas and strips quotes and blanks.
func splitHeader(line string) []string {
	line = strings.TrimRight(stripBOM(line), "\r\n")
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		fields = strings.Split(line, ",")
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.Trim(strings.TrimSpace(f), `"'`)
	}
	return out
}

// FirstLine returns the text up to the first line break.
func FirstLine(data []byte) string {
	s := string(data)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
