package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalculationBase names the monetary quantity on a loan that a percentage
// fee or penalty applies to.
type CalculationBase string

const (
	BasePrincipalAmount    CalculationBase = "principal_amount"
	BaseTotalAmount        CalculationBase = "total_amount"
	BaseMonthlyPayment     CalculationBase = "monthly_payment"
	BaseRemainingBalance   CalculationBase = "remaining_balance"
	BaseOverdueAmount      CalculationBase = "overdue_amount"
	BaseOutstandingBalance CalculationBase = "outstanding_balance"
)

func (b CalculationBase) IsValid() bool {
	switch b {
	case BasePrincipalAmount, BaseTotalAmount, BaseMonthlyPayment,
		BaseRemainingBalance, BaseOverdueAmount, BaseOutstandingBalance:
		return true
	}
	return false
}

// PenaltyRecurrence controls how often a penalty re-applies while overdue.
type PenaltyRecurrence string

const (
	RecurrenceOneTime PenaltyRecurrence = "one_time"
	RecurrenceDaily   PenaltyRecurrence = "daily"
	RecurrenceWeekly  PenaltyRecurrence = "weekly"
	RecurrenceMonthly PenaltyRecurrence = "monthly"
)

func (r PenaltyRecurrence) IsValid() bool {
	switch r {
	case RecurrenceOneTime, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// LoanFee is a deduction taken out of the principal at disbursement
// (processing fee, notarial fee, insurance). A positive FixedAmount wins
// over the rate.
type LoanFee struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Name        string          `json:"name"`
	Base        CalculationBase `json:"calculation_base"`
	Rate        decimal.Decimal `json:"rate"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LoanPenalty is a charge that accrues once a loan goes past due, after a
// grace period, repeating per the recurrence cadence.
type LoanPenalty struct {
	ID              uuid.UUID         `json:"id"`
	LoanID          uuid.UUID         `json:"loan_id"`
	Name            string            `json:"name"`
	Base            CalculationBase   `json:"calculation_base"`
	Rate            decimal.Decimal   `json:"rate"`
	FixedAmount     decimal.Decimal   `json:"fixed_amount"`
	GracePeriodDays int               `json:"grace_period_days"`
	Recurrence      PenaltyRecurrence `json:"recurrence"`
	CreatedAt       time.Time         `json:"created_at"`
}
