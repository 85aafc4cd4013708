// Package ledger implements loan accounting: origination, the approval
// lifecycle, and payment recording.
package ledger

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
	"github.com/rcabral/microlend/pkg/rules"
	"github.com/rcabral/microlend/pkg/store"
)

// maxConflictRetries bounds how often an operation re-reads and retries
// after losing an optimistic-concurrency race.
const maxConflictRetries = 3

var (
	ErrLoanNotActive        = errors.New("loan is not active")
	ErrBorrowerNotConfirmed = errors.New("borrower KYC is not confirmed")
)

// Ledger handles the business logic for borrowers, loans and payments.
type Ledger struct {
	storage store.Storage
	clock   clock.Clock
	ids     *ids.Generator
	logger  *slog.Logger
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, c clock.Clock, logger *slog.Logger) *Ledger {
	return &Ledger{
		storage: s,
		clock:   c,
		ids:     ids.NewGenerator(),
		logger:  logger,
	}
}

// CreateBorrower registers a borrower with pending KYC.
func (l *Ledger) CreateBorrower(firstName, lastName, email, phone, address string) (*models.Borrower, error) {
	now := l.clock.Now()
	b := &models.Borrower{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Phone:     phone,
		Address:   address,
		KYCStatus: models.KYCStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.storage.CreateBorrower(b); err != nil {
		return nil, fmt.Errorf("failed to store borrower: %w", err)
	}
	return b, nil
}

// ConfirmBorrowerKYC confirms a borrower's pending KYC.
func (l *Ledger) ConfirmBorrowerKYC(id uuid.UUID) (*models.Borrower, error) {
	return l.updateBorrowerKYC(id, (*models.Borrower).ConfirmKYC)
}

// DeclineBorrowerKYC declines a borrower's pending KYC.
func (l *Ledger) DeclineBorrowerKYC(id uuid.UUID) (*models.Borrower, error) {
	return l.updateBorrowerKYC(id, (*models.Borrower).DeclineKYC)
}

func (l *Ledger) updateBorrowerKYC(id uuid.UUID, transition func(*models.Borrower) error) (*models.Borrower, error) {
	b, err := l.storage.GetBorrower(id)
	if err != nil {
		return nil, err
	}
	if err := transition(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = l.clock.Now()
	if err := l.storage.UpdateBorrower(b); err != nil {
		return nil, fmt.Errorf("failed to update borrower: %w", err)
	}
	return b, nil
}

// AddRequirement records a KYC document requirement for a borrower.
func (l *Ledger) AddRequirement(borrowerID uuid.UUID, name string, submitted bool) (*models.Requirement, error) {
	if _, err := l.storage.GetBorrower(borrowerID); err != nil {
		return nil, err
	}
	r := &models.Requirement{
		ID:         uuid.New(),
		BorrowerID: borrowerID,
		Name:       name,
		Submitted:  submitted,
		CreatedAt:  l.clock.Now(),
	}
	if err := l.storage.CreateRequirement(r); err != nil {
		return nil, fmt.Errorf("failed to store requirement: %w", err)
	}
	return r, nil
}

// CreateLoanInput carries the origination parameters. Duration is entered
// in months or years and normalized to months.
type CreateLoanInput struct {
	BorrowerID     uuid.UUID
	Principal      decimal.Decimal
	DurationCount  int
	DurationPeriod models.DurationPeriod
	InterestRate   decimal.Decimal
}

// CreateLoan originates a pending loan, computing the simple-interest total
// and the monthly payment up front.
func (l *Ledger) CreateLoan(input CreateLoanInput) (*models.Loan, error) {
	if !input.Principal.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	borrower, err := l.storage.GetBorrower(input.BorrowerID)
	if err != nil {
		return nil, err
	}
	if borrower.KYCStatus != models.KYCStatusConfirmed {
		return nil, ErrBorrowerNotConfirmed
	}

	months := models.DurationInMonths(input.DurationCount, input.DurationPeriod)
	total, err := models.TotalLoanAmount(input.Principal, input.InterestRate, months)
	if err != nil {
		return nil, err
	}
	monthly, err := models.MonthlyLoanPayment(total, months)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	ref, err := l.ids.LoanReference(now.Year(), l.storage.LoanReferenceExists)
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:             uuid.New(),
		Reference:      ref,
		BorrowerID:     input.BorrowerID,
		Principal:      input.Principal,
		DurationMonths: months,
		DurationPeriod: input.DurationPeriod,
		InterestRate:   input.InterestRate,
		InterestMethod: models.InterestMethodSimple,
		TotalAmount:    total,
		MonthlyPayment: monthly,
		ReleasedAmount: input.Principal, // adjusted for fees at activation
		PaidAmount:     decimal.Zero,
		Status:         models.LoanStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.Info("loan originated", "reference", loan.Reference, "principal", loan.Principal.StringFixed(2), "total", loan.TotalAmount.StringFixed(2))
	return loan, nil
}

// AttachFee adds a fee rule to a loan before disbursement.
func (l *Ledger) AttachFee(loanID uuid.UUID, name string, base models.CalculationBase, rate, fixedAmount decimal.Decimal) (*models.LoanFee, error) {
	if !base.IsValid() {
		return nil, fmt.Errorf("unknown calculation base %q", base)
	}
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	fee := &models.LoanFee{
		ID:          uuid.New(),
		LoanID:      loanID,
		Name:        name,
		Base:        base,
		Rate:        rate,
		FixedAmount: fixedAmount,
		CreatedAt:   l.clock.Now(),
	}
	if err := l.storage.CreateFee(fee); err != nil {
		return nil, fmt.Errorf("failed to store fee: %w", err)
	}
	return fee, nil
}

// AttachPenalty adds a penalty rule to a loan.
func (l *Ledger) AttachPenalty(loanID uuid.UUID, name string, base models.CalculationBase, rate, fixedAmount decimal.Decimal, graceDays int, recurrence models.PenaltyRecurrence) (*models.LoanPenalty, error) {
	if !base.IsValid() {
		return nil, fmt.Errorf("unknown calculation base %q", base)
	}
	if !recurrence.IsValid() {
		return nil, fmt.Errorf("unknown recurrence %q", recurrence)
	}
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	penalty := &models.LoanPenalty{
		ID:              uuid.New(),
		LoanID:          loanID,
		Name:            name,
		Base:            base,
		Rate:            rate,
		FixedAmount:     fixedAmount,
		GracePeriodDays: graceDays,
		Recurrence:      recurrence,
		CreatedAt:       l.clock.Now(),
	}
	if err := l.storage.CreatePenalty(penalty); err != nil {
		return nil, fmt.Errorf("failed to store penalty: %w", err)
	}
	return penalty, nil
}

// AddCollateral pledges an asset against a loan.
func (l *Ledger) AddCollateral(c *models.Collateral) error {
	if _, err := l.storage.GetLoan(c.LoanID); err != nil {
		return err
	}
	c.ID = uuid.New()
	c.CreatedAt = l.clock.Now()
	if err := l.storage.CreateCollateral(c); err != nil {
		return fmt.Errorf("failed to store collateral: %w", err)
	}
	return nil
}

// ApproveLoan moves a pending loan to approved.
func (l *Ledger) ApproveLoan(id uuid.UUID) (*models.Loan, error) {
	return l.transitionLoan(id, func(loan *models.Loan) error { return loan.Approve() })
}

// ActivateLoan disburses an approved loan: it fixes the release and due
// dates and computes the released amount, principal minus fee deductions.
func (l *Ledger) ActivateLoan(id uuid.UUID) (*models.Loan, error) {
	now := l.clock.Now()
	return l.transitionLoan(id, func(loan *models.Loan) error {
		if err := loan.Activate(now); err != nil {
			return err
		}
		fees, err := l.storage.GetFeesForLoan(loan.ID)
		if err != nil {
			return err
		}
		loan.ReleasedAmount = rules.ReleasedAmount(loan, fees, now)
		return nil
	})
}

// CompleteLoan closes an active loan as fully repaid.
func (l *Ledger) CompleteLoan(id uuid.UUID) (*models.Loan, error) {
	return l.transitionLoan(id, func(loan *models.Loan) error { return loan.Complete() })
}

// DefaultLoan closes an active loan as defaulted.
func (l *Ledger) DefaultLoan(id uuid.UUID) (*models.Loan, error) {
	return l.transitionLoan(id, func(loan *models.Loan) error { return loan.Default() })
}

func (l *Ledger) transitionLoan(id uuid.UUID, apply func(*models.Loan) error) (*models.Loan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		loan, err := l.storage.GetLoan(id)
		if err != nil {
			return nil, err
		}
		if err := apply(loan); err != nil {
			return nil, err
		}
		loan.UpdatedAt = l.clock.Now()
		err = l.storage.UpdateLoan(loan)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update loan: %w", err)
		}
		l.logger.Info("loan status changed", "reference", loan.Reference, "status", loan.Status)
		return loan, nil
	}
	return nil, store.ErrConflict
}

// RecordPayment processes a payment for an active loan. The amount is split
// into principal and interest components proportional to the loan's totals,
// and the loan completes automatically when the balance reaches zero.
func (l *Ledger) RecordPayment(loanID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, ptype models.PaymentType, processedBy string) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("unknown payment method %q", method)
	}
	if !ptype.IsValid() {
		return nil, fmt.Errorf("unknown payment type %q", ptype)
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		loan, err := l.storage.GetLoan(loanID)
		if err != nil {
			return nil, err
		}
		if loan.Status != models.LoanStatusActive {
			return nil, ErrLoanNotActive
		}
		if amount.GreaterThan(loan.OutstandingBalance()) {
			return nil, models.ErrInsufficientRemaining
		}

		now := l.clock.Now()
		loan.PaidAmount = loan.PaidAmount.Add(amount)
		if loan.OutstandingBalance().IsZero() {
			if err := loan.Complete(); err != nil {
				return nil, err
			}
		}
		loan.UpdatedAt = now

		// The payment is fully built before anything is persisted, so a
		// reference generation failure leaves the loan untouched.
		payment, err := l.buildPayment(loan, amount, method, ptype, processedBy, now)
		if err != nil {
			return nil, err
		}

		err = l.storage.RecordLoanPayment(loan, payment)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		l.logger.Info("payment recorded", "loan", loan.Reference, "payment", payment.Reference, "amount", amount.StringFixed(2), "remaining", payment.RemainingBalance.StringFixed(2))
		return payment, nil
	}
	return nil, store.ErrConflict
}

func (l *Ledger) buildPayment(loan *models.Loan, amount decimal.Decimal, method models.PaymentMethod, ptype models.PaymentType, processedBy string, now time.Time) (*models.Payment, error) {
	ref, err := l.ids.PaymentReference(l.storage.PaymentReferenceExists)
	if err != nil {
		return nil, err
	}

	// Interest share of the payment mirrors the interest share of the
	// total: amount * (total - principal) / total.
	interest := decimal.Zero
	if loan.TotalAmount.IsPositive() {
		interest = amount.Mul(loan.TotalAmount.Sub(loan.Principal)).Div(loan.TotalAmount).Round(2)
	}

	payment := &models.Payment{
		ID:               uuid.New(),
		Reference:        ref,
		LoanID:           loan.ID,
		Amount:           amount,
		Date:             now,
		Type:             ptype,
		Method:           method,
		Status:           models.PaymentStatusPending,
		PrincipalAmount:  amount.Sub(interest),
		InterestAmount:   interest,
		PenaltyAmount:    decimal.Zero,
		RemainingBalance: loan.OutstandingBalance(),
		ProcessedBy:      processedBy,
		CreatedAt:        now,
	}
	if err := payment.Complete(now); err != nil {
		return nil, err
	}
	return payment, nil
}

// AccruedPenalties evaluates every penalty rule on the loan as of now.
func (l *Ledger) AccruedPenalties(loanID uuid.UUID) (decimal.Decimal, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	penalties, err := l.storage.GetPenaltiesForLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return rules.TotalPenalties(loan, penalties, l.clock.Now()), nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// GetPaymentsForLoan retrieves a loan's payment history.
func (l *Ledger) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	return l.storage.GetPaymentsForLoan(loanID)
}

// GetRequirements retrieves a borrower's KYC requirements.
func (l *Ledger) GetRequirements(borrowerID uuid.UUID) ([]models.Requirement, error) {
	if _, err := l.storage.GetBorrower(borrowerID); err != nil {
		return nil, err
	}
	return l.storage.GetRequirementsForBorrower(borrowerID)
}

// GetCollaterals retrieves the collateral pledged against a loan.
func (l *Ledger) GetCollaterals(loanID uuid.UUID) ([]models.Collateral, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetCollateralsForLoan(loanID)
}

// GetBorrower retrieves a borrower by its ID.
func (l *Ledger) GetBorrower(id uuid.UUID) (*models.Borrower, error) {
	return l.storage.GetBorrower(id)
}

// GetAllBorrowers retrieves all borrowers.
func (l *Ledger) GetAllBorrowers() ([]*models.Borrower, error) {
	return l.storage.GetAllBorrowers()
}

// DeleteLoan deletes a loan and everything it owns.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}
