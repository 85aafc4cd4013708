package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rcabral/microlend/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
// The unique index on payables.loan_id is what makes payable generation
// idempotent under concurrent invocation.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS borrowers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		kyc_status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS requirements (
		id TEXT PRIMARY KEY,
		borrower_id TEXT NOT NULL,
		name TEXT NOT NULL,
		submitted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(borrower_id) REFERENCES borrowers(id)
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		borrower_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		duration_period TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		interest_method TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		monthly_payment TEXT NOT NULL,
		released_amount TEXT NOT NULL DEFAULT '0',
		paid_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		release_date DATETIME,
		due_date DATETIME,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(borrower_id) REFERENCES borrowers(id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_reference ON loans(reference);
	CREATE TABLE IF NOT EXISTS loan_fees (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		calculation_base TEXT NOT NULL,
		rate TEXT NOT NULL DEFAULT '0',
		fixed_amount TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS loan_penalties (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		calculation_base TEXT NOT NULL,
		rate TEXT NOT NULL DEFAULT '0',
		fixed_amount TEXT NOT NULL DEFAULT '0',
		grace_period_days INTEGER NOT NULL DEFAULT 0,
		recurrence TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS collaterals (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		estimated_value TEXT NOT NULL DEFAULT '0',
		make TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		plate_number TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		serial_number TEXT NOT NULL DEFAULT '',
		appraisal_value TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		type TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		principal_amount TEXT NOT NULL DEFAULT '0',
		interest_amount TEXT NOT NULL DEFAULT '0',
		penalty_amount TEXT NOT NULL DEFAULT '0',
		remaining_balance TEXT NOT NULL DEFAULT '0',
		processed_by TEXT NOT NULL DEFAULT '',
		processed_at DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_reference ON payments(reference);
	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		loan_id TEXT,
		vendor_name TEXT NOT NULL DEFAULT '',
		invoice_number TEXT NOT NULL DEFAULT '',
		invoice_date DATETIME NOT NULL,
		due_date DATETIME NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		remaining_amount TEXT NOT NULL DEFAULT '0',
		terms INTEGER NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		late_fee_rate TEXT NOT NULL DEFAULT '0',
		late_fee_amount TEXT NOT NULL DEFAULT '0',
		discount_rate TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payables_reference ON payables(reference);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payables_loan_id ON payables(loan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueConstraintError checks if the error indicates a unique index
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) refExists(table, ref string) (bool, error) {
	var count int
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE reference = ?", table), ref).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return count > 0, nil
}

// CreateBorrower inserts a new borrower into the database.
func (s *SQLiteStore) CreateBorrower(b *models.Borrower) error {
	_, err := s.db.Exec(
		`INSERT INTO borrowers (id, first_name, last_name, email, phone, address, kyc_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.FirstName, b.LastName, b.Email, b.Phone, b.Address, b.KYCStatus, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create borrower: %w", err)
	}
	return nil
}

// GetBorrower retrieves a borrower by its ID.
func (s *SQLiteStore) GetBorrower(id uuid.UUID) (*models.Borrower, error) {
	var b models.Borrower
	var idStr string
	row := s.db.QueryRow(`SELECT id, first_name, last_name, email, phone, address, kyc_status, created_at, updated_at FROM borrowers WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Address, &b.KYCStatus, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get borrower: %w", err)
	}
	b.ID = uuid.MustParse(idStr)
	return &b, nil
}

// UpdateBorrower updates an existing borrower.
func (s *SQLiteStore) UpdateBorrower(b *models.Borrower) error {
	result, err := s.db.Exec(
		`UPDATE borrowers SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?, kyc_status = ?, updated_at = ? WHERE id = ?`,
		b.FirstName, b.LastName, b.Email, b.Phone, b.Address, b.KYCStatus, b.UpdatedAt, b.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update borrower: %w", err)
	}
	return requireRows(result)
}

// GetAllBorrowers retrieves all borrowers.
func (s *SQLiteStore) GetAllBorrowers() ([]*models.Borrower, error) {
	rows, err := s.db.Query(`SELECT id, first_name, last_name, email, phone, address, kyc_status, created_at, updated_at FROM borrowers`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all borrowers: %w", err)
	}
	defer rows.Close()

	var borrowers []*models.Borrower
	for rows.Next() {
		var b models.Borrower
		var idStr string
		if err := rows.Scan(&idStr, &b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Address, &b.KYCStatus, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan borrower row: %w", err)
		}
		b.ID = uuid.MustParse(idStr)
		borrowers = append(borrowers, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return borrowers, nil
}

// CreateRequirement inserts a KYC requirement for a borrower.
func (s *SQLiteStore) CreateRequirement(r *models.Requirement) error {
	_, err := s.db.Exec(
		`INSERT INTO requirements (id, borrower_id, name, submitted, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.BorrowerID.String(), r.Name, r.Submitted, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create requirement: %w", err)
	}
	return nil
}

// GetRequirementsForBorrower retrieves all KYC requirements for a borrower.
func (s *SQLiteStore) GetRequirementsForBorrower(borrowerID uuid.UUID) ([]models.Requirement, error) {
	rows, err := s.db.Query(`SELECT id, borrower_id, name, submitted, created_at FROM requirements WHERE borrower_id = ?`, borrowerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get requirements: %w", err)
	}
	defer rows.Close()

	var reqs []models.Requirement
	for rows.Next() {
		var r models.Requirement
		var idStr, bidStr string
		if err := rows.Scan(&idStr, &bidStr, &r.Name, &r.Submitted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requirement row: %w", err)
		}
		r.ID = uuid.MustParse(idStr)
		r.BorrowerID = uuid.MustParse(bidStr)
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return reqs, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, reference, borrower_id, principal, duration_months, duration_period, interest_rate, interest_method, total_amount, monthly_payment, released_amount, paid_amount, status, release_date, due_date, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Reference, loan.BorrowerID.String(), loan.Principal, loan.DurationMonths, loan.DurationPeriod,
		loan.InterestRate, loan.InterestMethod, loan.TotalAmount, loan.MonthlyPayment, loan.ReleasedAmount, loan.PaidAmount,
		loan.Status, loan.ReleaseDate, loan.DueDate, loan.Version, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

const loanColumns = `id, reference, borrower_id, principal, duration_months, duration_period, interest_rate, interest_method, total_amount, monthly_payment, released_amount, paid_amount, status, release_date, due_date, version, created_at, updated_at`

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, borrowerIDStr string
	var releaseDate, dueDate sql.NullTime
	err := row.Scan(&idStr, &loan.Reference, &borrowerIDStr, &loan.Principal, &loan.DurationMonths, &loan.DurationPeriod,
		&loan.InterestRate, &loan.InterestMethod, &loan.TotalAmount, &loan.MonthlyPayment, &loan.ReleasedAmount, &loan.PaidAmount,
		&loan.Status, &releaseDate, &dueDate, &loan.Version, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.BorrowerID = uuid.MustParse(borrowerIDStr)
	if releaseDate.Valid {
		loan.ReleaseDate = &releaseDate.Time
	}
	if dueDate.Valid {
		loan.DueDate = &dueDate.Time
	}
	return &loan, nil
}

// UpdateLoan updates an existing loan, matching on the version the caller
// read. A stale version yields ErrConflict so the caller can re-read and
// retry.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	rowsAffected, err := execLoanUpdate(s.db, loan)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetLoan(loan.ID); getErr == nil {
			return ErrConflict
		}
		return ErrNotFound
	}
	loan.Version++
	return nil
}

// execer abstracts *sql.DB and *sql.Tx for statements shared between
// standalone and transactional writes.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func execLoanUpdate(e execer, loan *models.Loan) (int64, error) {
	result, err := e.Exec(
		`UPDATE loans SET principal = ?, duration_months = ?, duration_period = ?, interest_rate = ?, interest_method = ?, total_amount = ?, monthly_payment = ?, released_amount = ?, paid_amount = ?, status = ?, release_date = ?, due_date = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		loan.Principal, loan.DurationMonths, loan.DurationPeriod, loan.InterestRate, loan.InterestMethod, loan.TotalAmount,
		loan.MonthlyPayment, loan.ReleasedAmount, loan.PaidAmount, loan.Status, loan.ReleaseDate, loan.DueDate,
		loan.UpdatedAt, loan.ID.String(), loan.Version,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteLoan removes a loan and everything it owns (payments, fees,
// penalties, collaterals, linked payables) within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	idStr := id.String()
	for _, table := range []string{"payments", "loan_fees", "loan_penalties", "collaterals", "payables"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE loan_id = ?", table), idStr); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, idStr)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT ` + loanColumns + ` FROM loans`)
}

// GetAllActiveLoans retrieves all active loans.
func (s *SQLiteStore) GetAllActiveLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE status = ?`, string(models.LoanStatusActive))
}

func (s *SQLiteStore) queryLoans(query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// LoanReferenceExists reports whether a loan reference is already taken.
func (s *SQLiteStore) LoanReferenceExists(ref string) (bool, error) {
	return s.refExists("loans", ref)
}

// CreateFee inserts a fee rule for a loan.
func (s *SQLiteStore) CreateFee(fee *models.LoanFee) error {
	_, err := s.db.Exec(
		`INSERT INTO loan_fees (id, loan_id, name, calculation_base, rate, fixed_amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fee.ID.String(), fee.LoanID.String(), fee.Name, fee.Base, fee.Rate, fee.FixedAmount, fee.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fee: %w", err)
	}
	return nil
}

// GetFeesForLoan retrieves all fee rules attached to a loan.
func (s *SQLiteStore) GetFeesForLoan(loanID uuid.UUID) ([]models.LoanFee, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, name, calculation_base, rate, fixed_amount, created_at FROM loan_fees WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get fees: %w", err)
	}
	defer rows.Close()

	var fees []models.LoanFee
	for rows.Next() {
		var fee models.LoanFee
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &fee.Name, &fee.Base, &fee.Rate, &fee.FixedAmount, &fee.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee row: %w", err)
		}
		fee.ID = uuid.MustParse(idStr)
		fee.LoanID = uuid.MustParse(loanIDStr)
		fees = append(fees, fee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return fees, nil
}

// CreatePenalty inserts a penalty rule for a loan.
func (s *SQLiteStore) CreatePenalty(penalty *models.LoanPenalty) error {
	_, err := s.db.Exec(
		`INSERT INTO loan_penalties (id, loan_id, name, calculation_base, rate, fixed_amount, grace_period_days, recurrence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		penalty.ID.String(), penalty.LoanID.String(), penalty.Name, penalty.Base, penalty.Rate, penalty.FixedAmount,
		penalty.GracePeriodDays, penalty.Recurrence, penalty.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create penalty: %w", err)
	}
	return nil
}

// GetPenaltiesForLoan retrieves all penalty rules attached to a loan.
func (s *SQLiteStore) GetPenaltiesForLoan(loanID uuid.UUID) ([]models.LoanPenalty, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, name, calculation_base, rate, fixed_amount, grace_period_days, recurrence, created_at FROM loan_penalties WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get penalties: %w", err)
	}
	defer rows.Close()

	var penalties []models.LoanPenalty
	for rows.Next() {
		var p models.LoanPenalty
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &p.Name, &p.Base, &p.Rate, &p.FixedAmount, &p.GracePeriodDays, &p.Recurrence, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan penalty row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.LoanID = uuid.MustParse(loanIDStr)
		penalties = append(penalties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return penalties, nil
}

// CreateCollateral inserts a collateral record for a loan.
func (s *SQLiteStore) CreateCollateral(c *models.Collateral) error {
	_, err := s.db.Exec(
		`INSERT INTO collaterals (id, loan_id, kind, description, estimated_value, make, model, year, plate_number, brand, serial_number, appraisal_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.LoanID.String(), c.Kind, c.Description, c.EstimatedValue, c.Make, c.Model, c.Year,
		c.PlateNumber, c.Brand, c.SerialNumber, c.AppraisalValue, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create collateral: %w", err)
	}
	return nil
}

// GetCollateralsForLoan retrieves all collateral pledged against a loan.
func (s *SQLiteStore) GetCollateralsForLoan(loanID uuid.UUID) ([]models.Collateral, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, kind, description, estimated_value, make, model, year, plate_number, brand, serial_number, appraisal_value, created_at FROM collaterals WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get collaterals: %w", err)
	}
	defer rows.Close()

	var collaterals []models.Collateral
	for rows.Next() {
		var c models.Collateral
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &c.Kind, &c.Description, &c.EstimatedValue, &c.Make, &c.Model, &c.Year,
			&c.PlateNumber, &c.Brand, &c.SerialNumber, &c.AppraisalValue, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collateral row: %w", err)
		}
		c.ID = uuid.MustParse(idStr)
		c.LoanID = uuid.MustParse(loanIDStr)
		collaterals = append(collaterals, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return collaterals, nil
}

// CreatePayment inserts a new payment into the database.
func (s *SQLiteStore) CreatePayment(p *models.Payment) error {
	return execPaymentInsert(s.db, p)
}

func execPaymentInsert(e execer, p *models.Payment) error {
	_, err := e.Exec(
		`INSERT INTO payments (id, reference, loan_id, amount, date, type, method, status, principal_amount, interest_amount, penalty_amount, remaining_balance, processed_by, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Reference, p.LoanID.String(), p.Amount, p.Date, p.Type, p.Method, p.Status,
		p.PrincipalAmount, p.InterestAmount, p.PenaltyAmount, p.RemainingBalance, p.ProcessedBy, p.ProcessedAt, p.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// RecordLoanPayment applies a loan balance update and its payment record in
// one transaction. A stale loan version rolls the whole write back with
// ErrConflict; a payment insert failure leaves the loan untouched.
func (s *SQLiteStore) RecordLoanPayment(loan *models.Loan, p *models.Payment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rowsAffected, err := execLoanUpdate(tx, loan)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		tx.Rollback()
		if _, getErr := s.GetLoan(loan.ID); getErr == nil {
			return ErrConflict
		}
		return ErrNotFound
	}

	if err := execPaymentInsert(tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	loan.Version++
	return nil
}

// GetPaymentsForLoan retrieves all payments for a given loan ID.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, reference, loan_id, amount, date, type, method, status, principal_amount, interest_amount, penalty_amount, remaining_balance, processed_by, processed_at, created_at FROM payments WHERE loan_id = ? ORDER BY date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var idStr, loanIDStr string
		var processedAt sql.NullTime
		if err := rows.Scan(&idStr, &p.Reference, &loanIDStr, &p.Amount, &p.Date, &p.Type, &p.Method, &p.Status,
			&p.PrincipalAmount, &p.InterestAmount, &p.PenaltyAmount, &p.RemainingBalance, &p.ProcessedBy, &processedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.LoanID = uuid.MustParse(loanIDStr)
		if processedAt.Valid {
			p.ProcessedAt = &processedAt.Time
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// PaymentReferenceExists reports whether a payment reference is taken.
func (s *SQLiteStore) PaymentReferenceExists(ref string) (bool, error) {
	return s.refExists("payments", ref)
}

// CreatePayable inserts a new accounts-payable record. A second payable for
// the same loan violates the unique loan_id index and returns ErrDuplicate.
func (s *SQLiteStore) CreatePayable(ap *models.AccountsPayable) error {
	var loanID any
	if ap.LoanID != nil {
		loanID = ap.LoanID.String()
	}
	_, err := s.db.Exec(
		`INSERT INTO payables (id, reference, loan_id, vendor_name, invoice_number, invoice_date, due_date, amount, paid_amount, remaining_amount, terms, category, status, late_fee_rate, late_fee_amount, discount_rate, discount_amount, notes, created_by, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID.String(), ap.Reference, loanID, ap.VendorName, ap.InvoiceNumber, ap.InvoiceDate, ap.DueDate,
		ap.Amount, ap.PaidAmount, ap.RemainingAmount, int(ap.Terms), ap.Category, ap.Status,
		ap.LateFeeRate, ap.LateFeeAmount, ap.DiscountRate, ap.DiscountAmount, ap.Notes, ap.CreatedBy.String(),
		ap.Version, ap.CreatedAt, ap.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payable: %w", err)
	}
	return nil
}

const payableColumns = `id, reference, loan_id, vendor_name, invoice_number, invoice_date, due_date, amount, paid_amount, remaining_amount, terms, category, status, late_fee_rate, late_fee_amount, discount_rate, discount_amount, notes, created_by, version, created_at, updated_at`

func scanPayable(row rowScanner) (*models.AccountsPayable, error) {
	var ap models.AccountsPayable
	var idStr, createdByStr string
	var loanIDStr sql.NullString
	var terms int
	err := row.Scan(&idStr, &ap.Reference, &loanIDStr, &ap.VendorName, &ap.InvoiceNumber, &ap.InvoiceDate, &ap.DueDate,
		&ap.Amount, &ap.PaidAmount, &ap.RemainingAmount, &terms, &ap.Category, &ap.Status,
		&ap.LateFeeRate, &ap.LateFeeAmount, &ap.DiscountRate, &ap.DiscountAmount, &ap.Notes, &createdByStr,
		&ap.Version, &ap.CreatedAt, &ap.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ap.ID = uuid.MustParse(idStr)
	ap.CreatedBy = uuid.MustParse(createdByStr)
	ap.Terms = models.PaymentTerms(terms)
	if loanIDStr.Valid {
		loanID := uuid.MustParse(loanIDStr.String)
		ap.LoanID = &loanID
	}
	return &ap, nil
}

// GetPayable retrieves a payable by its ID.
func (s *SQLiteStore) GetPayable(id uuid.UUID) (*models.AccountsPayable, error) {
	row := s.db.QueryRow(`SELECT `+payableColumns+` FROM payables WHERE id = ?`, id.String())
	ap, err := scanPayable(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payable: %w", err)
	}
	return ap, nil
}

// UpdatePayable updates an existing payable, matching on the version the
// caller read.
func (s *SQLiteStore) UpdatePayable(ap *models.AccountsPayable) error {
	result, err := s.db.Exec(
		`UPDATE payables SET vendor_name = ?, invoice_number = ?, invoice_date = ?, due_date = ?, amount = ?, paid_amount = ?, remaining_amount = ?, terms = ?, category = ?, status = ?, late_fee_rate = ?, late_fee_amount = ?, discount_rate = ?, discount_amount = ?, notes = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		ap.VendorName, ap.InvoiceNumber, ap.InvoiceDate, ap.DueDate, ap.Amount, ap.PaidAmount, ap.RemainingAmount,
		int(ap.Terms), ap.Category, ap.Status, ap.LateFeeRate, ap.LateFeeAmount, ap.DiscountRate, ap.DiscountAmount,
		ap.Notes, ap.UpdatedAt, ap.ID.String(), ap.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update payable: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetPayable(ap.ID); getErr == nil {
			return ErrConflict
		}
		return ErrNotFound
	}
	ap.Version++
	return nil
}

// GetAllPayables retrieves all payables.
func (s *SQLiteStore) GetAllPayables() ([]*models.AccountsPayable, error) {
	rows, err := s.db.Query(`SELECT ` + payableColumns + ` FROM payables`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all payables: %w", err)
	}
	defer rows.Close()

	var payables []*models.AccountsPayable
	for rows.Next() {
		ap, err := scanPayable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payable row: %w", err)
		}
		payables = append(payables, ap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payables, nil
}

// PayableExistsForLoan reports whether a payable already exists for a loan.
func (s *SQLiteStore) PayableExistsForLoan(loanID uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM payables WHERE loan_id = ?`, loanID.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check payable existence: %w", err)
	}
	return count > 0, nil
}

// PayableReferenceExists reports whether a payable reference is taken.
func (s *SQLiteStore) PayableReferenceExists(ref string) (bool, error) {
	return s.refExists("payables", ref)
}

func requireRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
