package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalLoanAmount(t *testing.T) {
	// 10000 at 12% over 12 months: 10000 + 10000 * 0.12 * 1.
	total, err := TotalLoanAmount(decimal.NewFromInt(10000), decimal.NewFromInt(12), 12)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(11200)), "total = %s", total)

	// 6 months accrues half the annual interest.
	total, err = TotalLoanAmount(decimal.NewFromInt(10000), decimal.NewFromInt(12), 6)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(10600)), "total = %s", total)

	// Zero rate leaves the principal unchanged.
	total, err = TotalLoanAmount(decimal.NewFromInt(5000), decimal.Zero, 24)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(5000)))
}

func TestTotalLoanAmountErrors(t *testing.T) {
	_, err := TotalLoanAmount(decimal.NewFromInt(-1), decimal.NewFromInt(5), 12)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = TotalLoanAmount(decimal.NewFromInt(1000), decimal.NewFromInt(-5), 12)
	assert.ErrorIs(t, err, ErrNegativeRate)

	_, err = TotalLoanAmount(decimal.NewFromInt(1000), decimal.NewFromInt(5), 0)
	assert.ErrorIs(t, err, ErrZeroDuration)
}

func TestMonthlyLoanPayment(t *testing.T) {
	monthly, err := MonthlyLoanPayment(decimal.NewFromInt(11200), 12)
	require.NoError(t, err)
	assert.True(t, monthly.Equal(decimal.RequireFromString("933.33")), "monthly = %s", monthly)

	_, err = MonthlyLoanPayment(decimal.NewFromInt(1000), 0)
	assert.ErrorIs(t, err, ErrZeroDuration)
}

func TestDurationInMonths(t *testing.T) {
	assert.Equal(t, 18, DurationInMonths(18, DurationPeriodMonths))
	assert.Equal(t, 24, DurationInMonths(2, DurationPeriodYears))
}

func TestOutstandingBalance(t *testing.T) {
	l := &Loan{TotalAmount: decimal.NewFromInt(1000), PaidAmount: decimal.NewFromInt(400)}
	assert.True(t, l.OutstandingBalance().Equal(decimal.NewFromInt(600)))

	// Overpayment clamps at zero rather than going negative.
	l.PaidAmount = decimal.NewFromInt(1200)
	assert.True(t, l.OutstandingBalance().IsZero())
}

func TestOverdueAmount(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := &Loan{
		TotalAmount: decimal.NewFromInt(1000),
		PaidAmount:  decimal.NewFromInt(250),
		DueDate:     &due,
	}

	assert.True(t, l.OverdueAmount(due).IsZero())
	assert.True(t, l.OverdueAmount(due.AddDate(0, 0, 1)).Equal(decimal.NewFromInt(750)))

	l.DueDate = nil
	assert.True(t, l.OverdueAmount(due.AddDate(0, 1, 0)).IsZero())
}

func TestLoanStatusTransitions(t *testing.T) {
	cases := []struct {
		from    LoanStatus
		to      LoanStatus
		allowed bool
	}{
		{LoanStatusPending, LoanStatusApproved, true},
		{LoanStatusPending, LoanStatusActive, false},
		{LoanStatusPending, LoanStatusCompleted, false},
		{LoanStatusApproved, LoanStatusActive, true},
		{LoanStatusApproved, LoanStatusCompleted, false},
		{LoanStatusActive, LoanStatusCompleted, true},
		{LoanStatusActive, LoanStatusDefaulted, true},
		{LoanStatusActive, LoanStatusPending, false},
		{LoanStatusCompleted, LoanStatusActive, false},
		{LoanStatusDefaulted, LoanStatusActive, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestActivateSetsDates(t *testing.T) {
	l := &Loan{Status: LoanStatusApproved, DurationMonths: 12}
	release := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	require.NoError(t, l.Activate(release))
	assert.Equal(t, LoanStatusActive, l.Status)
	// Time-of-day is dropped from the release date.
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *l.ReleaseDate)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), *l.DueDate)
}

func TestActivateRequiresApproved(t *testing.T) {
	l := &Loan{Status: LoanStatusPending, DurationMonths: 6}
	assert.ErrorIs(t, l.Activate(time.Now()), ErrInvalidTransition)
	assert.Nil(t, l.ReleaseDate)
}
