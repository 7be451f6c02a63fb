package bulkimport

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ignite/loadboard/internal/domain"
)

var fieldValidator = validator.New()

var (
	simpleRequired   = []string{"Origin", "Destination", "VehicleType", "Price"}
	standardRequired = []string{
		"equipmentType", "originCity", "originState", "destinationCity", "destinationState",
		"pickupDate", "deliveryDate", "rate",
	}
)

// Validate checks the raw values of a row against its template. Every rule
// is evaluated, so the result lists all violations.
func Validate(raw domain.RawRow, t domain.TemplateType) (domain.RowStatus, []string) {
	errs := []string{}
	present := func(k string) bool { return strings.TrimSpace(raw[k]) != "" }

	switch t {
	case domain.TemplateSimple:
		for _, f := range simpleRequired {
			if !present(f) {
				errs = append(errs, f+" is required")
			}
		}
		if present("Price") {
			if _, ok := parseAmount(raw["Price"]); !ok {
				errs = append(errs, "Price must be a valid number ≥ 0")
			}
		}

	case domain.TemplateStandard, domain.TemplateComplete:
		for _, f := range standardRequired {
			if !present(f) {
				errs = append(errs, f+" is required")
			}
		}
		if present("rate") {
			if _, ok := parseAmount(raw["rate"]); !ok {
				errs = append(errs, "rate must be a valid number ≥ 0")
			}
		}
		pickup, pickupOK := parseDate(raw["pickupDate"])
		if present("pickupDate") && !pickupOK {
			errs = append(errs, "pickupDate must be a valid date")
		}
		delivery, deliveryOK := parseDate(raw["deliveryDate"])
		if present("deliveryDate") && !deliveryOK {
			errs = append(errs, "deliveryDate must be a valid date")
		}
		if pickupOK && deliveryOK && pickup.After(delivery) {
			errs = append(errs, "pickupDate must not be after deliveryDate")
		}

		if t == domain.TemplateComplete {
			if present("contactEmail") && fieldValidator.Var(strings.TrimSpace(raw["contactEmail"]), "email") != nil {
				errs = append(errs, "contactEmail must be a valid email address")
			}
			if present("weight") {
				if _, ok := parseAmount(raw["weight"]); !ok {
					errs = append(errs, "weight must be a valid number ≥ 0")
				}
			}
		}

	default:
		errs = append(errs, "unknown template "+string(t))
	}

	if len(errs) > 0 {
		return domain.RowInvalid, errs
	}
	return domain.RowValid, errs
}

// Classify validates and normalizes every row, preserving file order.
func Classify(rows []domain.RawRow, t domain.TemplateType, n *Normalizer) []domain.NormalizedRow {
	out := make([]domain.NormalizedRow, len(rows))
	for i, raw := range rows {
		status, errs := Validate(raw, t)
		row := n.Normalize(raw, t, i+1)
		row.Status = status
		row.Errors = errs
		out[i] = row
	}
	return out
}
