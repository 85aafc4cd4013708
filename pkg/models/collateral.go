package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CollateralKind string

const (
	CollateralKindVehicle CollateralKind = "vehicle"
	CollateralKindLuxury  CollateralKind = "luxury"
	CollateralKindGadget  CollateralKind = "gadget"
)

// Collateral is an asset pledged against a loan. The kind-specific detail
// fields are sparse; only the ones matching Kind are filled in.
type Collateral struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	Kind           CollateralKind  `json:"kind"`
	Description    string          `json:"description"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`

	// Vehicle details.
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Year        int    `json:"year,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`

	// Gadget details.
	Brand        string `json:"brand,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`

	// Luxury-goods details.
	AppraisalValue decimal.Decimal `json:"appraisal_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
