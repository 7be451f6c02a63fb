package bulkimport

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ignite/loadboard/internal/domain"
	"golang.org/x/text/cases"
)

const hashDelimiter = "|"

// RowHash fingerprints the normalized content of a row. Case and
// surrounding whitespace do not change the result.
func RowHash(r domain.NormalizedRow) string {
	fold := cases.Fold()
	norm := func(s string) string {
		return fold.String(strings.Join(strings.Fields(s), " "))
	}
	amount := func(f *float64) string {
		if f == nil {
			return ""
		}
		return strconv.FormatFloat(*f, 'f', 2, 64)
	}

	parts := []string{
		norm(r.Title),
		norm(deref(r.EquipmentType)),
		norm(deref(r.Origin)),
		norm(deref(r.Destination)),
		norm(deref(r.PickupDate)),
		norm(deref(r.DeliveryDate)),
		amount(r.Rate),
		amount(r.Weight),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, hashDelimiter)))
	return hex.EncodeToString(sum[:])
}
