package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/rcabral/microlend/pkg/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

// Storage defines the persistence operations the accounting services need.
// UpdateLoan and UpdatePayable are optimistic: they match on the record's
// Version, return ErrConflict when it is stale, and bump Version on
// success.
type Storage interface {
	CreateBorrower(b *models.Borrower) error
	GetBorrower(id uuid.UUID) (*models.Borrower, error)
	UpdateBorrower(b *models.Borrower) error
	GetAllBorrowers() ([]*models.Borrower, error)
	CreateRequirement(r *models.Requirement) error
	GetRequirementsForBorrower(borrowerID uuid.UUID) ([]models.Requirement, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error // cascades to all owned records
	GetAllLoans() ([]*models.Loan, error)
	GetAllActiveLoans() ([]*models.Loan, error)
	LoanReferenceExists(ref string) (bool, error)

	CreateFee(fee *models.LoanFee) error
	GetFeesForLoan(loanID uuid.UUID) ([]models.LoanFee, error)
	CreatePenalty(penalty *models.LoanPenalty) error
	GetPenaltiesForLoan(loanID uuid.UUID) ([]models.LoanPenalty, error)
	CreateCollateral(c *models.Collateral) error
	GetCollateralsForLoan(loanID uuid.UUID) ([]models.Collateral, error)

	CreatePayment(p *models.Payment) error
	// RecordLoanPayment persists the loan's new balance and the payment
	// record together; neither survives if the other fails. The loan
	// update is optimistic like UpdateLoan.
	RecordLoanPayment(loan *models.Loan, p *models.Payment) error
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)
	PaymentReferenceExists(ref string) (bool, error)

	CreatePayable(ap *models.AccountsPayable) error
	GetPayable(id uuid.UUID) (*models.AccountsPayable, error)
	UpdatePayable(ap *models.AccountsPayable) error
	GetAllPayables() ([]*models.AccountsPayable, error)
	PayableExistsForLoan(loanID uuid.UUID) (bool, error)
	PayableReferenceExists(ref string) (bool, error)

	Close() error
}
