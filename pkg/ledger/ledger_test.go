package ledger

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/clock"
	"github.com/rcabral/microlend/pkg/ids"
	"github.com/rcabral/microlend/pkg/models"
	"github.com/rcabral/microlend/pkg/store"
)

func testLedger(t *testing.T) (*Ledger, *store.MemoryStore, clock.Fixed) {
	t.Helper()
	s := store.NewMemoryStore()
	c := clock.Fixed{T: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(s, c, logger), s, c
}

func confirmedBorrower(t *testing.T, l *Ledger) *models.Borrower {
	t.Helper()
	b, err := l.CreateBorrower("Maria", "Santos", "maria@example.com", "09171234567", "Quezon City")
	if err != nil {
		t.Fatalf("Failed to create borrower: %v", err)
	}
	if b.KYCStatus != models.KYCStatusPending {
		t.Fatalf("Expected pending KYC, got %s", b.KYCStatus)
	}
	if _, err := l.ConfirmBorrowerKYC(b.ID); err != nil {
		t.Fatalf("Failed to confirm KYC: %v", err)
	}
	return b
}

func TestCreateLoan(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, err := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(10000),
		DurationCount:  1,
		DurationPeriod: models.DurationPeriodYears,
		InterestRate:   decimal.NewFromInt(12),
	})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	if loan.DurationMonths != 12 {
		t.Errorf("Expected 12 months, got %d", loan.DurationMonths)
	}
	// 10000 + 10000 * 12% * 1 year
	expectedTotal := decimal.NewFromInt(11200)
	if !loan.TotalAmount.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, loan.TotalAmount)
	}
	expectedMonthly := decimal.RequireFromString("933.33")
	if !loan.MonthlyPayment.Equal(expectedMonthly) {
		t.Errorf("Expected monthly payment %s, got %s", expectedMonthly, loan.MonthlyPayment)
	}
	if loan.Status != models.LoanStatusPending {
		t.Errorf("Expected status pending, got %s", loan.Status)
	}
	if loan.Reference == "" {
		t.Error("Expected a loan reference to be assigned")
	}
}

func TestCreateLoanRequiresConfirmedKYC(t *testing.T) {
	l, _, _ := testLedger(t)

	b, err := l.CreateBorrower("Jose", "Reyes", "", "", "")
	if err != nil {
		t.Fatalf("Failed to create borrower: %v", err)
	}

	_, err = l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(5000),
		DurationCount:  6,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(10),
	})
	if err != ErrBorrowerNotConfirmed {
		t.Errorf("Expected ErrBorrowerNotConfirmed, got %v", err)
	}
}

func TestDeclineKYCIsFinal(t *testing.T) {
	l, _, _ := testLedger(t)

	b, _ := l.CreateBorrower("Ana", "Cruz", "", "", "")
	if _, err := l.DeclineBorrowerKYC(b.ID); err != nil {
		t.Fatalf("Failed to decline KYC: %v", err)
	}
	if _, err := l.ConfirmBorrowerKYC(b.ID); err == nil {
		t.Error("Expected confirming a declined borrower to fail")
	}
}

func TestLoanLifecycle(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(6000),
		DurationCount:  6,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(10),
	})

	// Pending loans cannot be completed or activated directly.
	if _, err := l.CompleteLoan(loan.ID); err == nil {
		t.Error("Expected completing a pending loan to fail")
	}
	if _, err := l.ActivateLoan(loan.ID); err == nil {
		t.Error("Expected activating a pending loan to fail")
	}

	if _, err := l.ApproveLoan(loan.ID); err != nil {
		t.Fatalf("Failed to approve loan: %v", err)
	}
	active, err := l.ActivateLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to activate loan: %v", err)
	}
	wantRelease := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if active.ReleaseDate == nil || !active.ReleaseDate.Equal(wantRelease) {
		t.Errorf("Expected release date %s, got %v", wantRelease, active.ReleaseDate)
	}
	wantDue := wantRelease.AddDate(0, 6, 0)
	if active.DueDate == nil || !active.DueDate.Equal(wantDue) {
		t.Errorf("Expected due date %s, got %v", wantDue, active.DueDate)
	}

	defaulted, err := l.DefaultLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to default loan: %v", err)
	}
	if defaulted.Status != models.LoanStatusDefaulted {
		t.Errorf("Expected status defaulted, got %s", defaulted.Status)
	}
	// Terminal states accept no further transitions.
	if _, err := l.ApproveLoan(loan.ID); err == nil {
		t.Error("Expected approving a defaulted loan to fail")
	}
}

func TestActivateDeductsFees(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(10000),
		DurationCount:  12,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(12),
	})

	// 2% of principal plus a flat 150 processing charge.
	if _, err := l.AttachFee(loan.ID, "service fee", models.BasePrincipalAmount, decimal.NewFromInt(2), decimal.Zero); err != nil {
		t.Fatalf("Failed to attach fee: %v", err)
	}
	if _, err := l.AttachFee(loan.ID, "processing fee", models.BasePrincipalAmount, decimal.Zero, decimal.NewFromInt(150)); err != nil {
		t.Fatalf("Failed to attach fee: %v", err)
	}

	l.ApproveLoan(loan.ID)
	active, err := l.ActivateLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to activate loan: %v", err)
	}

	expected := decimal.NewFromInt(9650)
	if !active.ReleasedAmount.Equal(expected) {
		t.Errorf("Expected released amount %s, got %s", expected, active.ReleasedAmount)
	}
}

func TestRecordPayment(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(10000),
		DurationCount:  12,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(12),
	})
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)

	payment, err := l.RecordPayment(loan.ID, decimal.NewFromInt(1120), models.PaymentMethodCash, models.PaymentTypeRegular, "teller-1")
	if err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}

	// Total is 11200 of which 1200 is interest, so the interest share of
	// any payment is 1200/11200.
	expectedInterest := decimal.NewFromInt(120)
	if !payment.InterestAmount.Equal(expectedInterest) {
		t.Errorf("Expected interest component %s, got %s", expectedInterest, payment.InterestAmount)
	}
	if !payment.PrincipalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected principal component 1000, got %s", payment.PrincipalAmount)
	}
	if payment.Status != models.PaymentStatusCompleted {
		t.Errorf("Expected completed payment, got %s", payment.Status)
	}
	if !payment.RemainingBalance.Equal(decimal.NewFromInt(10080)) {
		t.Errorf("Expected remaining balance 10080, got %s", payment.RemainingBalance)
	}

	updated, _ := l.GetLoan(loan.ID)
	if !updated.PaidAmount.Equal(decimal.NewFromInt(1120)) {
		t.Errorf("Expected paid amount 1120, got %s", updated.PaidAmount)
	}
}

func TestRecordPaymentOverBalance(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(1000),
		DurationCount:  12,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.Zero,
	})
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)

	_, err := l.RecordPayment(loan.ID, decimal.NewFromInt(1500), models.PaymentMethodCash, models.PaymentTypeFull, "")
	if err != models.ErrInsufficientRemaining {
		t.Errorf("Expected ErrInsufficientRemaining, got %v", err)
	}
}

func TestRecordPaymentCompletesLoan(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(1000),
		DurationCount:  12,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.Zero,
	})
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)

	payment, err := l.RecordPayment(loan.ID, decimal.NewFromInt(1000), models.PaymentMethodBankTransfer, models.PaymentTypeFull, "")
	if err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}
	if !payment.RemainingBalance.IsZero() {
		t.Errorf("Expected zero remaining balance, got %s", payment.RemainingBalance)
	}

	updated, _ := l.GetLoan(loan.ID)
	if updated.Status != models.LoanStatusCompleted {
		t.Errorf("Expected status completed, got %s", updated.Status)
	}

	// A completed loan accepts no more payments.
	if _, err := l.RecordPayment(loan.ID, decimal.NewFromInt(1), models.PaymentMethodCash, models.PaymentTypeRegular, ""); err != ErrLoanNotActive {
		t.Errorf("Expected ErrLoanNotActive, got %v", err)
	}
}

func TestRecordPaymentInactiveLoan(t *testing.T) {
	l, _, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(1000),
		DurationCount:  6,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(5),
	})

	_, err := l.RecordPayment(loan.ID, decimal.NewFromInt(100), models.PaymentMethodCash, models.PaymentTypeRegular, "")
	if err != ErrLoanNotActive {
		t.Errorf("Expected ErrLoanNotActive, got %v", err)
	}
}

// saturatedRefStore reports every payment reference as taken, so reference
// generation always exhausts its attempts.
type saturatedRefStore struct {
	*store.MemoryStore
}

func (s saturatedRefStore) PaymentReferenceExists(string) (bool, error) {
	return true, nil
}

func TestRecordPaymentFailureLeavesLoanUnchanged(t *testing.T) {
	base := store.NewMemoryStore()
	c := clock.Fixed{T: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := NewLedger(base, c, logger)
	b := confirmedBorrower(t, l)
	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(10000),
		DurationCount:  12,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(12),
	})
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)

	failing := NewLedger(saturatedRefStore{base}, c, logger)
	_, err := failing.RecordPayment(loan.ID, decimal.NewFromInt(500), models.PaymentMethodCash, models.PaymentTypeRegular, "")
	if !errors.Is(err, ids.ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}

	// The failed attempt must not leave a balance change behind.
	stored, _ := base.GetLoan(loan.ID)
	if !stored.PaidAmount.IsZero() {
		t.Errorf("Expected paid amount untouched, got %s", stored.PaidAmount)
	}
	if stored.Status != models.LoanStatusActive {
		t.Errorf("Expected loan still active, got %s", stored.Status)
	}
	payments, _ := base.GetPaymentsForLoan(loan.ID)
	if len(payments) != 0 {
		t.Errorf("Expected no payment records, got %d", len(payments))
	}
}

func TestAccruedPenalties(t *testing.T) {
	l, s, c := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(10000),
		DurationCount:  6,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(12),
	})
	if _, err := l.AttachPenalty(loan.ID, "late penalty", models.BaseMonthlyPayment, decimal.Zero, decimal.NewFromInt(50), 3, models.RecurrenceDaily); err != nil {
		t.Fatalf("Failed to attach penalty: %v", err)
	}
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)

	// Not yet due: nothing accrues.
	total, err := l.AccruedPenalties(loan.ID)
	if err != nil {
		t.Fatalf("Failed to compute penalties: %v", err)
	}
	if !total.IsZero() {
		t.Errorf("Expected zero penalties before the due date, got %s", total)
	}

	// Push the due date into the past, 10 days overdue with a 3 day grace.
	stored, _ := s.GetLoan(loan.ID)
	past := c.T.AddDate(0, 0, -10)
	stored.DueDate = &past
	if err := s.UpdateLoan(stored); err != nil {
		t.Fatalf("Failed to backdate loan: %v", err)
	}

	total, err = l.AccruedPenalties(loan.ID)
	if err != nil {
		t.Fatalf("Failed to compute penalties: %v", err)
	}
	expected := decimal.NewFromInt(350) // 50 per day past grace, 7 days
	if !total.Equal(expected) {
		t.Errorf("Expected penalties %s, got %s", expected, total)
	}
}

func TestDeleteLoanCascades(t *testing.T) {
	l, s, _ := testLedger(t)
	b := confirmedBorrower(t, l)

	loan, _ := l.CreateLoan(CreateLoanInput{
		BorrowerID:     b.ID,
		Principal:      decimal.NewFromInt(1000),
		DurationCount:  6,
		DurationPeriod: models.DurationPeriodMonths,
		InterestRate:   decimal.NewFromInt(5),
	})
	l.AttachFee(loan.ID, "service fee", models.BasePrincipalAmount, decimal.NewFromInt(1), decimal.Zero)
	l.ApproveLoan(loan.ID)
	l.ActivateLoan(loan.ID)
	l.RecordPayment(loan.ID, decimal.NewFromInt(100), models.PaymentMethodCash, models.PaymentTypeRegular, "")

	if err := l.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetLoan(loan.ID); err != store.ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	payments, _ := s.GetPaymentsForLoan(loan.ID)
	if len(payments) != 0 {
		t.Errorf("Expected payments to be deleted with the loan, got %d", len(payments))
	}
}
