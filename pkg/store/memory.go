package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rcabral/microlend/pkg/models"
)

// MemoryStore is an in-memory Storage used by service tests and local
// experiments. It mirrors the SQLite store's semantics: records are stored
// and returned by value, updates match on version, and a second payable for
// the same loan is rejected with ErrDuplicate.
type MemoryStore struct {
	mu           sync.Mutex
	borrowers    map[uuid.UUID]models.Borrower
	requirements []models.Requirement
	loans        map[uuid.UUID]models.Loan
	fees         []models.LoanFee
	penalties    []models.LoanPenalty
	collaterals  []models.Collateral
	payments     []models.Payment
	payables     map[uuid.UUID]models.AccountsPayable
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		borrowers: make(map[uuid.UUID]models.Borrower),
		loans:     make(map[uuid.UUID]models.Loan),
		payables:  make(map[uuid.UUID]models.AccountsPayable),
	}
}

func (m *MemoryStore) CreateBorrower(b *models.Borrower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBorrower(id uuid.UUID) (*models.Borrower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrowers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) UpdateBorrower(b *models.Borrower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.borrowers[b.ID]; !ok {
		return ErrNotFound
	}
	m.borrowers[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetAllBorrowers() ([]*models.Borrower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Borrower
	for _, b := range m.borrowers {
		b := b
		out = append(out, &b)
	}
	return out, nil
}

func (m *MemoryStore) CreateRequirement(r *models.Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requirements = append(m.requirements, *r)
	return nil
}

func (m *MemoryStore) GetRequirementsForBorrower(borrowerID uuid.UUID) ([]models.Requirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Requirement
	for _, r := range m.requirements {
		if r.BorrowerID == borrowerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.loans {
		if existing.Reference == loan.Reference {
			return ErrDuplicate
		}
	}
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &loan, nil
}

func (m *MemoryStore) UpdateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.loans[loan.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != loan.Version {
		return ErrConflict
	}
	loan.Version++
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MemoryStore) DeleteLoan(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[id]; !ok {
		return ErrNotFound
	}
	delete(m.loans, id)
	filterPayments := m.payments[:0]
	for _, p := range m.payments {
		if p.LoanID != id {
			filterPayments = append(filterPayments, p)
		}
	}
	m.payments = filterPayments
	filterFees := m.fees[:0]
	for _, f := range m.fees {
		if f.LoanID != id {
			filterFees = append(filterFees, f)
		}
	}
	m.fees = filterFees
	filterPenalties := m.penalties[:0]
	for _, p := range m.penalties {
		if p.LoanID != id {
			filterPenalties = append(filterPenalties, p)
		}
	}
	m.penalties = filterPenalties
	filterCollaterals := m.collaterals[:0]
	for _, c := range m.collaterals {
		if c.LoanID != id {
			filterCollaterals = append(filterCollaterals, c)
		}
	}
	m.collaterals = filterCollaterals
	for apID, ap := range m.payables {
		if ap.LoanID != nil && *ap.LoanID == id {
			delete(m.payables, apID)
		}
	}
	return nil
}

func (m *MemoryStore) GetAllLoans() ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loan
	for _, loan := range m.loans {
		loan := loan
		out = append(out, &loan)
	}
	return out, nil
}

func (m *MemoryStore) GetAllActiveLoans() ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loan
	for _, loan := range m.loans {
		if loan.Status == models.LoanStatusActive {
			loan := loan
			out = append(out, &loan)
		}
	}
	return out, nil
}

func (m *MemoryStore) LoanReferenceExists(ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loan := range m.loans {
		if loan.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreateFee(fee *models.LoanFee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fees = append(m.fees, *fee)
	return nil
}

func (m *MemoryStore) GetFeesForLoan(loanID uuid.UUID) ([]models.LoanFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LoanFee
	for _, f := range m.fees {
		if f.LoanID == loanID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePenalty(penalty *models.LoanPenalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.penalties = append(m.penalties, *penalty)
	return nil
}

func (m *MemoryStore) GetPenaltiesForLoan(loanID uuid.UUID) ([]models.LoanPenalty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LoanPenalty
	for _, p := range m.penalties {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateCollateral(c *models.Collateral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collaterals = append(m.collaterals, *c)
	return nil
}

func (m *MemoryStore) GetCollateralsForLoan(loanID uuid.UUID) ([]models.Collateral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Collateral
	for _, c := range m.collaterals {
		if c.LoanID == loanID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePayment(p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, *p)
	return nil
}

func (m *MemoryStore) RecordLoanPayment(loan *models.Loan, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.loans[loan.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != loan.Version {
		return ErrConflict
	}
	for _, q := range m.payments {
		if q.Reference == p.Reference {
			return ErrDuplicate
		}
	}
	loan.Version++
	m.loans[loan.ID] = *loan
	m.payments = append(m.payments, *p)
	return nil
}

func (m *MemoryStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *MemoryStore) PaymentReferenceExists(ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreatePayable(ap *models.AccountsPayable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payables {
		if existing.Reference == ap.Reference {
			return ErrDuplicate
		}
		if ap.LoanID != nil && existing.LoanID != nil && *existing.LoanID == *ap.LoanID {
			return ErrDuplicate
		}
	}
	m.payables[ap.ID] = *ap
	return nil
}

func (m *MemoryStore) GetPayable(id uuid.UUID) (*models.AccountsPayable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap, ok := m.payables[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ap, nil
}

func (m *MemoryStore) UpdatePayable(ap *models.AccountsPayable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.payables[ap.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != ap.Version {
		return ErrConflict
	}
	ap.Version++
	m.payables[ap.ID] = *ap
	return nil
}

func (m *MemoryStore) GetAllPayables() ([]*models.AccountsPayable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AccountsPayable
	for _, ap := range m.payables {
		ap := ap
		out = append(out, &ap)
	}
	return out, nil
}

func (m *MemoryStore) PayableExistsForLoan(loanID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ap := range m.payables {
		if ap.LoanID != nil && *ap.LoanID == loanID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) PayableReferenceExists(ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ap := range m.payables {
		if ap.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Close() error { return nil }
