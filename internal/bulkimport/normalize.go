package bulkimport

import (
	"strings"
	"time"

	"github.com/ignite/loadboard/internal/domain"
)

// Normalizer maps raw rows onto canonical loads. The clock drives the
// default pickup and delivery dates.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer uses now as its clock; nil means time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// extracted holds the template-specific reading of a raw row before defaults.
type extracted struct {
	title, description, equipment           string
	origin, destination                     string
	pickup, delivery                        string
	rate, weight, vehicleCount              string
	contactName, contactEmail, contactPhone string
	specialInstructions                     string
}

func extract(raw domain.RawRow, t domain.TemplateType) extracted {
	get := func(k string) string { return strings.TrimSpace(raw[k]) }

	switch t {
	case domain.TemplateSimple:
		return extracted{
			equipment:   get("VehicleType"),
			origin:      get("Origin"),
			destination: get("Destination"),
			weight:      get("Weight"),
			rate:        get("Price"),
		}
	default:
		e := extracted{
			title:               get("title"),
			description:         get("description"),
			equipment:           get("equipmentType"),
			vehicleCount:        get("vehicleCount"),
			origin:              joinLocation(get("originAddress"), get("originCity"), get("originState"), get("originZip")),
			destination:         joinLocation(get("destinationAddress"), get("destinationCity"), get("destinationState"), get("destinationZip")),
			pickup:              get("pickupDate"),
			delivery:            get("deliveryDate"),
			rate:                get("rate"),
			weight:              get("weight"),
			contactName:         get("contactName"),
			contactEmail:        get("contactEmail"),
			contactPhone:        get("contactPhone"),
			specialInstructions: get("specialInstructions"),
		}
		if e.equipment == "" {
			e.equipment = get("vehicleType")
		}
		return e
	}
}

// Normalize builds the NormalizedRow for raw. rowNumber is the 1-based data
// row index. Status and Errors are left for the validator to fill.
func (n *Normalizer) Normalize(raw domain.RawRow, t domain.TemplateType, rowNumber int) domain.NormalizedRow {
	e := extract(raw, t)
	today := n.now()

	row := domain.NormalizedRow{
		RowNumber:           rowNumber,
		Description:         e.description,
		EquipmentType:       strPtr(e.equipment),
		Origin:              strPtr(e.origin),
		Destination:         strPtr(e.destination),
		ContactName:         e.contactName,
		ContactEmail:        e.contactEmail,
		ContactPhone:        e.contactPhone,
		SpecialInstructions: e.specialInstructions,
		Errors:              []string{},
	}

	row.Title = e.title
	if row.Title == "" {
		row.Title = synthesizeTitle(e.equipment, e.origin, e.destination)
	}

	pickup := today.AddDate(0, 0, 1).Format(isoDate)
	if d, ok := parseDate(e.pickup); ok {
		pickup = d.Format(isoDate)
	}
	delivery := today.AddDate(0, 0, 2).Format(isoDate)
	if d, ok := parseDate(e.delivery); ok {
		delivery = d.Format(isoDate)
	}
	row.PickupDate, row.DeliveryDate = &pickup, &delivery

	if v, ok := parseAmount(e.rate); ok {
		row.Rate = &v
	}
	if v, ok := parseAmount(e.weight); ok {
		row.Weight = &v
	}
	if v, ok := parseCount(e.vehicleCount); ok {
		row.VehicleCount = &v
	}

	row.RowHash = RowHash(row)
	return row
}

func synthesizeTitle(equipment, origin, destination string) string {
	if origin == "" && destination == "" {
		return "Auto Load"
	}
	if equipment == "" {
		equipment = "Load"
	}
	if origin == "" {
		origin = "TBD"
	}
	if destination == "" {
		destination = "TBD"
	}
	return equipment + " - " + origin + " to " + destination
}
