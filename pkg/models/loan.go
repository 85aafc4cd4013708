package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/money"
)

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusActive, LoanStatusCompleted, LoanStatusDefaulted:
		return true
	}
	return false
}

func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusCompleted || s == LoanStatusDefaulted
}

// loanTransitions is the allowed lifecycle graph. Anything not listed is
// rejected, including jumping a pending loan straight to completed.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:  {LoanStatusApproved},
	LoanStatusApproved: {LoanStatusActive},
	LoanStatusActive:   {LoanStatusCompleted, LoanStatusDefaulted},
}

func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type DurationPeriod string

const (
	DurationPeriodMonths DurationPeriod = "months"
	DurationPeriodYears  DurationPeriod = "years"
)

type InterestMethod string

const InterestMethodSimple InterestMethod = "simple"

// Loan is a single microfinance loan. Monetary derived fields (total,
// monthly payment, released amount) are computed once at origination and
// persisted; status changes only through the lifecycle methods.
type Loan struct {
	ID             uuid.UUID       `json:"id"`
	Reference      string          `json:"reference"` // e.g. LN20260042
	BorrowerID     uuid.UUID       `json:"borrower_id"`
	Principal      decimal.Decimal `json:"principal"`
	DurationMonths int             `json:"duration_months"`
	DurationPeriod DurationPeriod  `json:"duration_period"` // unit the duration was entered in
	InterestRate   decimal.Decimal `json:"interest_rate"`   // annual percentage
	InterestMethod InterestMethod  `json:"interest_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	ReleasedAmount decimal.Decimal `json:"released_amount"` // principal minus fee deductions
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         LoanStatus      `json:"status"`
	ReleaseDate    *time.Time      `json:"release_date,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DurationInMonths normalizes a duration count in the given unit to months.
func DurationInMonths(count int, period DurationPeriod) int {
	if period == DurationPeriodYears {
		return money.AnnualToMonths(count)
	}
	return count
}

// TotalLoanAmount computes principal plus simple (non-compounding) interest:
// principal * (rate/100) * (months/12).
func TotalLoanAmount(principal, annualRatePercent decimal.Decimal, durationMonths int) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, ErrNegativeRate
	}
	if durationMonths <= 0 {
		return decimal.Zero, ErrZeroDuration
	}
	interest := money.Percent(principal, annualRatePercent).Mul(money.YearsFraction(durationMonths))
	return money.RoundCents(principal.Add(interest)), nil
}

// MonthlyLoanPayment divides the total evenly across the term.
func MonthlyLoanPayment(totalAmount decimal.Decimal, durationMonths int) (decimal.Decimal, error) {
	if durationMonths <= 0 {
		return decimal.Zero, ErrZeroDuration
	}
	return money.RoundCents(totalAmount.Div(decimal.NewFromInt(int64(durationMonths)))), nil
}

// OutstandingBalance is what the borrower still owes, never negative.
func (l *Loan) OutstandingBalance() decimal.Decimal {
	balance := l.TotalAmount.Sub(l.PaidAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// OverdueAmount is the outstanding balance once the loan is past its due
// date, zero otherwise.
func (l *Loan) OverdueAmount(now time.Time) decimal.Decimal {
	if l.DueDate == nil || !money.DateAfter(now, *l.DueDate) {
		return decimal.Zero
	}
	return l.OutstandingBalance()
}

func (l *Loan) transitionTo(next LoanStatus) error {
	if !l.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	l.Status = next
	return nil
}

func (l *Loan) Approve() error {
	return l.transitionTo(LoanStatusApproved)
}

// Activate marks the loan disbursed on releaseDate and fixes its due date
// at the end of the term.
func (l *Loan) Activate(releaseDate time.Time) error {
	if err := l.transitionTo(LoanStatusActive); err != nil {
		return err
	}
	release := money.DateOf(releaseDate)
	due := release.AddDate(0, l.DurationMonths, 0)
	l.ReleaseDate = &release
	l.DueDate = &due
	return nil
}

func (l *Loan) Complete() error {
	return l.transitionTo(LoanStatusCompleted)
}

func (l *Loan) Default() error {
	return l.transitionTo(LoanStatusDefaulted)
}
