// Package rules evaluates the declarative fee and penalty definitions
// attached to a loan.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/models"
	"github.com/rcabral/microlend/pkg/money"
)

// BaseQuantity resolves a calculation base to the monetary quantity it
// names on the loan. Unknown bases resolve to zero.
func BaseQuantity(loan *models.Loan, base models.CalculationBase, now time.Time) decimal.Decimal {
	switch base {
	case models.BasePrincipalAmount:
		return loan.Principal
	case models.BaseTotalAmount:
		return loan.TotalAmount
	case models.BaseMonthlyPayment:
		return loan.MonthlyPayment
	case models.BaseRemainingBalance, models.BaseOutstandingBalance:
		return loan.OutstandingBalance()
	case models.BaseOverdueAmount:
		return loan.OverdueAmount(now)
	}
	return decimal.Zero
}

// FeeAmount evaluates one fee rule: the fixed amount when set, otherwise
// the rate applied to the resolved base.
func FeeAmount(loan *models.Loan, fee models.LoanFee, now time.Time) decimal.Decimal {
	if fee.FixedAmount.IsPositive() {
		return fee.FixedAmount
	}
	return money.RoundCents(money.Percent(BaseQuantity(loan, fee.Base, now), fee.Rate))
}

// TotalFees sums every fee rule on the loan.
func TotalFees(loan *models.Loan, fees []models.LoanFee, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, fee := range fees {
		total = total.Add(FeeAmount(loan, fee, now))
	}
	return total
}

// ReleasedAmount is the cash actually handed to the borrower: principal
// minus all fee deductions, floored at zero.
func ReleasedAmount(loan *models.Loan, fees []models.LoanFee, now time.Time) decimal.Decimal {
	released := loan.Principal.Sub(TotalFees(loan, fees, now))
	if released.IsNegative() {
		return decimal.Zero
	}
	return released
}

// intervalsElapsed maps days past the grace period onto recurrence units.
// The first day past grace counts as one interval for every cadence.
func intervalsElapsed(daysPastGrace int, recurrence models.PenaltyRecurrence) int64 {
	if daysPastGrace <= 0 {
		return 0
	}
	switch recurrence {
	case models.RecurrenceDaily:
		return int64(daysPastGrace)
	case models.RecurrenceWeekly:
		return int64((daysPastGrace + 6) / 7)
	case models.RecurrenceMonthly:
		return int64((daysPastGrace + 29) / 30)
	}
	return 1 // one_time
}

// PenaltyAmount evaluates one penalty rule against the clock. Nothing
// accrues before the loan is past due plus the grace period; after that the
// per-interval charge multiplies by the intervals elapsed.
func PenaltyAmount(loan *models.Loan, penalty models.LoanPenalty, now time.Time) decimal.Decimal {
	if loan.DueDate == nil {
		return decimal.Zero
	}
	overdueDays := money.DaysBetween(*loan.DueDate, now)
	daysPastGrace := overdueDays - penalty.GracePeriodDays
	if daysPastGrace <= 0 {
		return decimal.Zero
	}

	perInterval := penalty.FixedAmount
	if !perInterval.IsPositive() {
		perInterval = money.Percent(BaseQuantity(loan, penalty.Base, now), penalty.Rate)
	}
	intervals := intervalsElapsed(daysPastGrace, penalty.Recurrence)
	return money.RoundCents(perInterval.Mul(decimal.NewFromInt(intervals)))
}

// TotalPenalties sums every penalty rule on the loan as of now.
func TotalPenalties(loan *models.Loan, penalties []models.LoanPenalty, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, penalty := range penalties {
		total = total.Add(PenaltyAmount(loan, penalty, now))
	}
	return total
}
