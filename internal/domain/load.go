package domain

import "time"

// TemplateType names a CSV column schema a bulk-import file must conform to.
type TemplateType string

const (
	TemplateSimple   TemplateType = "simple"
	TemplateStandard TemplateType = "standard"
	TemplateComplete TemplateType = "complete"
)

// Valid reports whether t is one of the known templates.
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateSimple, TemplateStandard, TemplateComplete:
		return true
	}
	return false
}

// RowStatus is the classification of one imported row.
type RowStatus string

const (
	RowValid     RowStatus = "valid"
	RowInvalid   RowStatus = "invalid"
	RowDuplicate RowStatus = "duplicate"
)

// RawRow maps a column header to the cell value of one input line.
type RawRow map[string]string

// NormalizedRow is the canonical load produced from one RawRow.
// Errors is append-only: duplicate classification never erases validation messages.
type NormalizedRow struct {
	RowNumber           int       `json:"rowNumber"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	EquipmentType       *string   `json:"equipmentType"`
	Origin              *string   `json:"origin"`
	Destination         *string   `json:"destination"`
	PickupDate          *string   `json:"pickupDate"`
	DeliveryDate        *string   `json:"deliveryDate"`
	Rate                *float64  `json:"rate"`
	Weight              *float64  `json:"weight,omitempty"`
	VehicleCount        *int      `json:"vehicleCount,omitempty"`
	ContactName         string    `json:"contactName,omitempty"`
	ContactEmail        string    `json:"contactEmail,omitempty"`
	ContactPhone        string    `json:"contactPhone,omitempty"`
	SpecialInstructions string    `json:"specialInstructions,omitempty"`
	Status              RowStatus `json:"status"`
	Errors              []string  `json:"errors"`
	RowHash             string    `json:"rowHash"`
}

// MarkDuplicate overlays the duplicate status and appends reason.
func (r *NormalizedRow) MarkDuplicate(reason string) {
	r.Status = RowDuplicate
	r.Errors = append(r.Errors, reason)
}

// Skipped reports whether the row will not be written.
func (r NormalizedRow) Skipped() bool {
	return r.Status == RowInvalid || r.Status == RowDuplicate
}

// LoadStatus is the lifecycle status of a persisted load record.
type LoadStatus string

const (
	LoadOpen     LoadStatus = "OPEN"
	LoadArchived LoadStatus = "archived"
	LoadDeleted  LoadStatus = "deleted"
)

// LoadRecord is one load as persisted in the document store by the import executor.
type LoadRecord struct {
	ID                  string     `json:"id"`
	BulkImportID        string     `json:"bulkImportId"`
	RowHash             string     `json:"rowHash"`
	Status              LoadStatus `json:"status"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	EquipmentType       *string    `json:"equipmentType"`
	Origin              *string    `json:"origin"`
	Destination         *string    `json:"destination"`
	PickupDate          *string    `json:"pickupDate"`
	DeliveryDate        *string    `json:"deliveryDate"`
	Rate                *float64   `json:"rate"`
	Weight              *float64   `json:"weight"`
	VehicleCount        *int       `json:"vehicleCount"`
	ContactName         string     `json:"contactName,omitempty"`
	ContactEmail        string     `json:"contactEmail,omitempty"`
	ContactPhone        string     `json:"contactPhone,omitempty"`
	SpecialInstructions string     `json:"specialInstructions,omitempty"`
	CreatedBy           string     `json:"createdBy"`
	CreatedAt           time.Time  `json:"createdAt"`
	ExpiresAt           time.Time  `json:"expiresAt"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	DeletedBy           string     `json:"deletedBy,omitempty"`
	ArchivedAt          *time.Time `json:"archivedAt,omitempty"`
}
