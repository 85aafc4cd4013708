package models

import (
	"time"

	"github.com/google/uuid"
)

type KYCStatus string

const (
	KYCStatusPending   KYCStatus = "pending"
	KYCStatusConfirmed KYCStatus = "confirmed"
	KYCStatusDeclined  KYCStatus = "declined"
)

// Borrower is the party a loan is issued to. Confirmed KYC is a
// precondition for origination.
type Borrower struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	KYCStatus KYCStatus `json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Borrower) ConfirmKYC() error {
	if b.KYCStatus != KYCStatusPending {
		return ErrInvalidTransition
	}
	b.KYCStatus = KYCStatusConfirmed
	return nil
}

func (b *Borrower) DeclineKYC() error {
	if b.KYCStatus != KYCStatusPending {
		return ErrInvalidTransition
	}
	b.KYCStatus = KYCStatusDeclined
	return nil
}

// Requirement is a KYC document the borrower has to submit (valid ID,
// proof of income and so on).
type Requirement struct {
	ID         uuid.UUID `json:"id"`
	BorrowerID uuid.UUID `json:"borrower_id"`
	Name       string    `json:"name"`
	Submitted  bool      `json:"submitted"`
	CreatedAt  time.Time `json:"created_at"`
}
