package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeRegular PaymentType = "regular"
	PaymentTypePartial PaymentType = "partial"
	PaymentTypeFull    PaymentType = "full"
	PaymentTypePenalty PaymentType = "penalty"
	PaymentTypeAdvance PaymentType = "advance"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeRegular, PaymentTypePartial, PaymentTypeFull, PaymentTypePenalty, PaymentTypeAdvance:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodPayMaya      PaymentMethod = "paymaya"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheck,
		PaymentMethodOnline, PaymentMethodGCash, PaymentMethodPayMaya:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment records money received against a loan. RemainingBalance is the
// loan balance after this payment was applied.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	Reference        string          `json:"reference"` // e.g. PAY-4f9k2m1q
	LoanID           uuid.UUID       `json:"loan_id"`
	Amount           decimal.Decimal `json:"amount"`
	Date             time.Time       `json:"date"`
	Type             PaymentType     `json:"type"`
	Method           PaymentMethod   `json:"method"`
	Status           PaymentStatus   `json:"status"`
	PrincipalAmount  decimal.Decimal `json:"principal_amount"`
	InterestAmount   decimal.Decimal `json:"interest_amount"`
	PenaltyAmount    decimal.Decimal `json:"penalty_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	ProcessedBy      string          `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Complete marks a pending payment processed.
func (p *Payment) Complete(now time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidTransition
	}
	p.Status = PaymentStatusCompleted
	p.ProcessedAt = &now
	return nil
}

func (p *Payment) Fail() error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidTransition
	}
	p.Status = PaymentStatusFailed
	return nil
}

// Cancel is allowed from pending, and administratively from completed.
func (p *Payment) Cancel() error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusCompleted {
		return ErrInvalidTransition
	}
	p.Status = PaymentStatusCancelled
	return nil
}
