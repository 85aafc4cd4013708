package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/money"
)

type PayableStatus string

const (
	PayableStatusPending   PayableStatus = "pending"
	PayableStatusPartial   PayableStatus = "partial"
	PayableStatusPaid      PayableStatus = "paid"
	PayableStatusCancelled PayableStatus = "cancelled"

	// PayableStatusOverdue is a display state derived from the clock; it is
	// never persisted. See DisplayStatus.
	PayableStatusOverdue PayableStatus = "overdue"
)

func (s PayableStatus) IsValid() bool {
	switch s {
	case PayableStatusPending, PayableStatusPartial, PayableStatusPaid, PayableStatusCancelled:
		return true
	}
	return false
}

func (s PayableStatus) IsTerminal() bool {
	return s == PayableStatusPaid || s == PayableStatusCancelled
}

// PaymentTerms is the net-days agreement on an invoice.
type PaymentTerms int

const (
	TermsNet15 PaymentTerms = 15
	TermsNet30 PaymentTerms = 30
	TermsNet45 PaymentTerms = 45
	TermsNet60 PaymentTerms = 60
	TermsNet90 PaymentTerms = 90
)

func (t PaymentTerms) IsValid() bool {
	switch t {
	case TermsNet15, TermsNet30, TermsNet45, TermsNet60, TermsNet90:
		return true
	}
	return false
}

func (t PaymentTerms) Days() int { return int(t) }

type PayableCategory string

const (
	CategoryLoanDisbursement PayableCategory = "loan_disbursement"
	CategorySupplies         PayableCategory = "supplies"
	CategoryUtilities        PayableCategory = "utilities"
	CategoryServices         PayableCategory = "services"
	CategoryOther            PayableCategory = "other"
)

// AccountsPayable is an amount the lender owes out, most commonly the
// disbursement of an active loan. Version backs the optimistic lock used by
// the store.
type AccountsPayable struct {
	ID              uuid.UUID       `json:"id"`
	Reference       string          `json:"reference"` // e.g. AP20260013
	LoanID          *uuid.UUID      `json:"loan_id,omitempty"`
	VendorName      string          `json:"vendor_name"`
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceDate     time.Time       `json:"invoice_date"`
	DueDate         time.Time       `json:"due_date"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Terms           PaymentTerms    `json:"terms"`
	Category        PayableCategory `json:"category"`
	Status          PayableStatus   `json:"status"`
	LateFeeRate     decimal.Decimal `json:"late_fee_rate"` // annual percentage
	LateFeeAmount   decimal.Decimal `json:"late_fee_amount"`
	DiscountRate    decimal.Decimal `json:"discount_rate"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CalculateRemainingAmount is amount - paid - discount, floored at zero.
func (ap *AccountsPayable) CalculateRemainingAmount() decimal.Decimal {
	remaining := ap.Amount.Sub(ap.PaidAmount).Sub(ap.DiscountAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsOverdue reports whether the current date is strictly past the due date
// and the payable has not been settled. Evaluated on read; the persisted
// status can lag until UpdateStatus runs.
func (ap *AccountsPayable) IsOverdue(now time.Time) bool {
	if ap.Status == PayableStatusPaid {
		return false
	}
	return money.DateAfter(now, ap.DueDate)
}

// OverdueDays counts whole days past the due date, never negative.
func (ap *AccountsPayable) OverdueDays(now time.Time) int {
	return money.DaysBetween(ap.DueDate, now)
}

// CalculateLateFee accrues the annual late-fee rate pro-rata per overdue
// day over the remaining amount: remaining * (rate/100/365) * days.
func (ap *AccountsPayable) CalculateLateFee(now time.Time) decimal.Decimal {
	if !ap.IsOverdue(now) || !ap.LateFeeRate.IsPositive() {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(ap.OverdueDays(now)))
	fee := money.Percent(ap.CalculateRemainingAmount(), ap.LateFeeRate).Div(money.DaysInYear).Mul(days)
	return money.RoundCents(fee)
}

// CalculateEarlyPaymentDiscount is the incentive for settling before the
// due date: amount * (rate/100), zero once overdue.
func (ap *AccountsPayable) CalculateEarlyPaymentDiscount(now time.Time) decimal.Decimal {
	if !ap.DiscountRate.IsPositive() || ap.IsOverdue(now) {
		return decimal.Zero
	}
	return money.RoundCents(money.Percent(ap.Amount, ap.DiscountRate))
}

// TotalAmountDue is what it takes to settle today: remaining plus accrued
// late fees.
func (ap *AccountsPayable) TotalAmountDue(now time.Time) decimal.Decimal {
	return ap.CalculateRemainingAmount().Add(ap.CalculateLateFee(now))
}

// MakePayment applies a payment. Returns false without mutating anything
// when the amount is non-positive or exceeds the remaining balance.
func (ap *AccountsPayable) MakePayment(amount decimal.Decimal, notes string, now time.Time) bool {
	if !amount.IsPositive() || amount.GreaterThan(ap.CalculateRemainingAmount()) {
		return false
	}
	ap.PaidAmount = ap.PaidAmount.Add(amount)
	if notes != "" {
		if ap.Notes != "" {
			ap.Notes = strings.Join([]string{ap.Notes, notes}, "\n")
		} else {
			ap.Notes = notes
		}
	}
	ap.UpdateStatus()
	ap.UpdatedAt = now
	return true
}

// UpdateStatus recomputes the remaining amount and derives the persisted
// status from it. Late fees do not factor into the decision; they are
// surfaced through TotalAmountDue. Cancelled is terminal.
func (ap *AccountsPayable) UpdateStatus() {
	if ap.Status == PayableStatusCancelled {
		return
	}
	ap.RemainingAmount = ap.CalculateRemainingAmount()
	switch {
	case ap.RemainingAmount.LessThanOrEqual(decimal.Zero):
		ap.Status = PayableStatusPaid
	case ap.PaidAmount.IsPositive():
		ap.Status = PayableStatusPartial
	default:
		ap.Status = PayableStatusPending
	}
}

// Cancel voids an unsettled payable.
func (ap *AccountsPayable) Cancel() error {
	if ap.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	ap.Status = PayableStatusCancelled
	return nil
}

// DisplayStatus layers the computed overdue state on top of the persisted
// status for presentation.
func (ap *AccountsPayable) DisplayStatus(now time.Time) PayableStatus {
	if ap.Status != PayableStatusCancelled && ap.IsOverdue(now) {
		return PayableStatusOverdue
	}
	return ap.Status
}
