// Package payables implements accounts-payable accounting: payment
// application with optimistic-lock retry, status maintenance, and the
// batch that turns active loans into disbursement payables.
package payables

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/clock"
	"github.com/rcabral/microlend/pkg/ids"
	"github.com/rcabral/microlend/pkg/models"
	"github.com/rcabral/microlend/pkg/money"
	"github.com/rcabral/microlend/pkg/store"
)

const maxConflictRetries = 3

// Defaults applied to payables generated from active loans.
const (
	generatedTermDays    = 30
	generatedLateFeeRate = 5 // annual percent
)

// Service handles the business logic for accounts payable.
type Service struct {
	storage store.Storage
	clock   clock.Clock
	ids     *ids.Generator
	logger  *slog.Logger
}

// NewService creates a payables Service with a given Storage implementation.
func NewService(s store.Storage, c clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: s,
		clock:   c,
		ids:     ids.NewGenerator(),
		logger:  logger,
	}
}

// CreateInput carries the fields for a manually entered payable. DueDate is
// derived from the invoice date and terms when left zero.
type CreateInput struct {
	LoanID        *uuid.UUID
	VendorName    string
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	Amount        decimal.Decimal
	Terms         models.PaymentTerms
	Category      models.PayableCategory
	LateFeeRate   decimal.Decimal
	DiscountRate  decimal.Decimal
	Notes         string
	CreatedBy     uuid.UUID
}

// Create records a new pending payable.
func (s *Service) Create(input CreateInput) (*models.AccountsPayable, error) {
	if !input.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if !input.Terms.IsValid() {
		return nil, fmt.Errorf("unknown payment terms %d", input.Terms)
	}
	if input.LoanID != nil {
		if _, err := s.storage.GetLoan(*input.LoanID); err != nil {
			return nil, fmt.Errorf("resolving loan %s: %w", input.LoanID, err)
		}
	}

	now := s.clock.Now()
	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = money.DateOf(now)
	}
	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = money.DateOf(invoiceDate).AddDate(0, 0, input.Terms.Days())
	}

	ref, err := s.ids.PayableReference(now.Year(), s.storage.PayableReferenceExists)
	if err != nil {
		return nil, err
	}

	ap := &models.AccountsPayable{
		ID:              uuid.New(),
		Reference:       ref,
		LoanID:          input.LoanID,
		VendorName:      input.VendorName,
		InvoiceNumber:   input.InvoiceNumber,
		InvoiceDate:     invoiceDate,
		DueDate:         dueDate,
		Amount:          input.Amount,
		PaidAmount:      decimal.Zero,
		RemainingAmount: input.Amount,
		Terms:           input.Terms,
		Category:        input.Category,
		Status:          models.PayableStatusPending,
		LateFeeRate:     input.LateFeeRate,
		DiscountRate:    input.DiscountRate,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.storage.CreatePayable(ap); err != nil {
		return nil, fmt.Errorf("failed to store payable: %w", err)
	}
	return ap, nil
}

// MakePayment applies a payment against a payable. The boolean result is
// false when the amount is rejected (non-positive or above the remaining
// balance); nothing is persisted in that case. Lost optimistic-lock races
// re-read and retry up to the bound.
func (s *Service) MakePayment(id uuid.UUID, amount decimal.Decimal, notes string) (*models.AccountsPayable, bool, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		ap, err := s.storage.GetPayable(id)
		if err != nil {
			return nil, false, err
		}
		if !ap.MakePayment(amount, notes, s.clock.Now()) {
			return ap, false, nil
		}
		err = s.storage.UpdatePayable(ap)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to update payable: %w", err)
		}
		s.logger.Info("payable payment applied", "reference", ap.Reference, "amount", amount.StringFixed(2), "status", ap.Status)
		return ap, true, nil
	}
	return nil, false, store.ErrConflict
}

// UpdateStatus recomputes and persists the payable's remaining amount and
// status.
func (s *Service) UpdateStatus(id uuid.UUID) (*models.AccountsPayable, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		ap, err := s.storage.GetPayable(id)
		if err != nil {
			return nil, err
		}
		ap.UpdateStatus()
		ap.UpdatedAt = s.clock.Now()
		err = s.storage.UpdatePayable(ap)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update payable: %w", err)
		}
		return ap, nil
	}
	return nil, store.ErrConflict
}

// Cancel voids an unsettled payable.
func (s *Service) Cancel(id uuid.UUID) (*models.AccountsPayable, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		ap, err := s.storage.GetPayable(id)
		if err != nil {
			return nil, err
		}
		if err := ap.Cancel(); err != nil {
			return nil, err
		}
		ap.UpdatedAt = s.clock.Now()
		err = s.storage.UpdatePayable(ap)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update payable: %w", err)
		}
		return ap, nil
	}
	return nil, store.ErrConflict
}

// Get retrieves a payable by its ID.
func (s *Service) Get(id uuid.UUID) (*models.AccountsPayable, error) {
	return s.storage.GetPayable(id)
}

// GetAll retrieves all payables.
func (s *Service) GetAll() ([]*models.AccountsPayable, error) {
	return s.storage.GetAllPayables()
}

// GenerateLoanPayables creates one pending disbursement payable for every
// active loan that doesn't already have one: the released amount, due 30
// days out on net-30 terms with a 5% annual late-fee rate. The unique
// payable-per-loan index makes a concurrent duplicate insert surface as
// ErrDuplicate, which is treated as already generated. Returns the number
// of payables created.
func (s *Service) GenerateLoanPayables() (int, error) {
	loans, err := s.storage.GetAllActiveLoans()
	if err != nil {
		return 0, fmt.Errorf("failed to get active loans: %w", err)
	}

	now := s.clock.Now()
	today := money.DateOf(now)
	created := 0
	for _, loan := range loans {
		exists, err := s.storage.PayableExistsForLoan(loan.ID)
		if err != nil {
			s.logger.Error("failed to check payable existence", "loan", loan.Reference, "error", err)
			continue
		}
		if exists {
			continue
		}

		ref, err := s.ids.PayableReference(now.Year(), s.storage.PayableReferenceExists)
		if err != nil {
			s.logger.Error("failed to generate payable reference", "loan", loan.Reference, "error", err)
			continue
		}

		loanID := loan.ID
		ap := &models.AccountsPayable{
			ID:              uuid.New(),
			Reference:       ref,
			LoanID:          &loanID,
			VendorName:      "Loan disbursement " + loan.Reference,
			InvoiceNumber:   loan.Reference,
			InvoiceDate:     today,
			DueDate:         today.AddDate(0, 0, generatedTermDays),
			Amount:          loan.ReleasedAmount,
			PaidAmount:      decimal.Zero,
			RemainingAmount: loan.ReleasedAmount,
			Terms:           models.TermsNet30,
			Category:        models.CategoryLoanDisbursement,
			Status:          models.PayableStatusPending,
			LateFeeRate:     decimal.NewFromInt(generatedLateFeeRate),
			DiscountRate:    decimal.Zero,
			CreatedBy:       uuid.Nil, // system-generated
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = s.storage.CreatePayable(ap)
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race to a concurrent run; the payable exists.
			continue
		}
		if err != nil {
			s.logger.Error("failed to store generated payable", "loan", loan.Reference, "error", err)
			continue
		}
		created++
		s.logger.Info("payable generated", "loan", loan.Reference, "payable", ap.Reference, "amount", ap.Amount.StringFixed(2))
	}
	return created, nil
}
