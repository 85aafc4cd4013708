package main

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rcabral/microlend/pkg/clock"
	"github.com/rcabral/microlend/pkg/ledger"
	"github.com/rcabral/microlend/pkg/models"
	"github.com/rcabral/microlend/pkg/payables"
	"github.com/rcabral/microlend/pkg/store"
)

// Server holds the accounting services.
type Server struct {
	ledger   *ledger.Ledger
	payables *payables.Service
	storage  store.Storage
	clock    clock.Clock
	validate *validator.Validate
	logger   *slog.Logger
}

func NewServer(s store.Storage, c clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		ledger:   ledger.NewLedger(s, c, logger),
		payables: payables.NewService(s, c, logger),
		storage:  s,
		clock:    c,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrNegativeRate),
		errors.Is(err, models.ErrZeroDuration),
		errors.Is(err, models.ErrInsufficientRemaining),
		errors.Is(err, ledger.ErrLoanNotActive),
		errors.Is(err, ledger.ErrBorrowerNotConfirmed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) createBorrowerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name" validate:"required"`
		LastName  string `json:"last_name" validate:"required"`
		Email     string `json:"email" validate:"omitempty,email"`
		Phone     string `json:"phone"`
		Address   string `json:"address"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	borrower, err := s.ledger.CreateBorrower(req.FirstName, req.LastName, req.Email, req.Phone, req.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, borrower)
}

func (s *Server) listBorrowersHandler(w http.ResponseWriter, r *http.Request) {
	borrowers, err := s.ledger.GetAllBorrowers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, borrowers)
}

func (s *Server) getBorrowerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid borrower ID", http.StatusBadRequest)
		return
	}
	borrower, err := s.ledger.GetBorrower(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) confirmKYCHandler(w http.ResponseWriter, r *http.Request) {
	s.borrowerKYCHandler(w, r, s.ledger.ConfirmBorrowerKYC)
}

func (s *Server) declineKYCHandler(w http.ResponseWriter, r *http.Request) {
	s.borrowerKYCHandler(w, r, s.ledger.DeclineBorrowerKYC)
}

func (s *Server) borrowerKYCHandler(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) (*models.Borrower, error)) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid borrower ID", http.StatusBadRequest)
		return
	}
	borrower, err := op(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) addRequirementHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid borrower ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Name      string `json:"name" validate:"required"`
		Submitted bool   `json:"submitted"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	requirement, err := s.ledger.AddRequirement(id, req.Name, req.Submitted)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, requirement)
}

func (s *Server) listRequirementsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid borrower ID", http.StatusBadRequest)
		return
	}
	reqs, err := s.ledger.GetRequirements(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BorrowerID     string          `json:"borrower_id" validate:"required,uuid"`
		Principal      decimal.Decimal `json:"principal"`
		DurationCount  int             `json:"duration_count" validate:"gt=0"`
		DurationPeriod string          `json:"duration_period" validate:"required,oneof=months years"`
		InterestRate   decimal.Decimal `json:"interest_rate"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	loan, err := s.ledger.CreateLoan(ledger.CreateLoanInput{
		BorrowerID:     uuid.MustParse(req.BorrowerID),
		Principal:      req.Principal,
		DurationCount:  req.DurationCount,
		DurationPeriod: models.DurationPeriod(req.DurationPeriod),
		InterestRate:   req.InterestRate,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if err := s.ledger.DeleteLoan(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loanTransitionHandler(op func(uuid.UUID) (*models.Loan, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			http.Error(w, "Invalid loan ID", http.StatusBadRequest)
			return
		}
		loan, err := op(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, loan)
	}
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Method      string          `json:"method" validate:"required,oneof=cash bank_transfer check online gcash paymaya"`
		Type        string          `json:"type" validate:"required,oneof=regular partial full penalty advance"`
		ProcessedBy string          `json:"processed_by"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	payment, err := s.ledger.RecordPayment(id, req.Amount, models.PaymentMethod(req.Method), models.PaymentType(req.Type), req.ProcessedBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	payments, err := s.ledger.GetPaymentsForLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) attachFeeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Name        string          `json:"name" validate:"required"`
		Base        string          `json:"calculation_base" validate:"required,oneof=principal_amount total_amount monthly_payment remaining_balance overdue_amount outstanding_balance"`
		Rate        decimal.Decimal `json:"rate"`
		FixedAmount decimal.Decimal `json:"fixed_amount"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	fee, err := s.ledger.AttachFee(id, req.Name, models.CalculationBase(req.Base), req.Rate, req.FixedAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, fee)
}

func (s *Server) attachPenaltyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Name            string          `json:"name" validate:"required"`
		Base            string          `json:"calculation_base" validate:"required,oneof=principal_amount total_amount monthly_payment remaining_balance overdue_amount outstanding_balance"`
		Rate            decimal.Decimal `json:"rate"`
		FixedAmount     decimal.Decimal `json:"fixed_amount"`
		GracePeriodDays int             `json:"grace_period_days" validate:"gte=0"`
		Recurrence      string          `json:"recurrence" validate:"required,oneof=one_time daily weekly monthly"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	penalty, err := s.ledger.AttachPenalty(id, req.Name, models.CalculationBase(req.Base), req.Rate, req.FixedAmount, req.GracePeriodDays, models.PenaltyRecurrence(req.Recurrence))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, penalty)
}

func (s *Server) accruedPenaltiesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	total, err := s.ledger.AccruedPenalties(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"accrued_penalties": total})
}

func (s *Server) addCollateralHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var c models.Collateral
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.LoanID = id
	if err := s.ledger.AddCollateral(&c); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCollateralsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	collaterals, err := s.ledger.GetCollaterals(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, collaterals)
}

// payableResponse layers the computed fields over the persisted record.
type payableResponse struct {
	*models.AccountsPayable
	DisplayStatus models.PayableStatus `json:"display_status"`
	LateFee       decimal.Decimal      `json:"late_fee"`
	EarlyDiscount decimal.Decimal      `json:"early_payment_discount"`
	TotalDue      decimal.Decimal      `json:"total_amount_due"`
}

func (s *Server) payableView(ap *models.AccountsPayable) payableResponse {
	now := s.clock.Now()
	return payableResponse{
		AccountsPayable: ap,
		DisplayStatus:   ap.DisplayStatus(now),
		LateFee:         ap.CalculateLateFee(now),
		EarlyDiscount:   ap.CalculateEarlyPaymentDiscount(now),
		TotalDue:        ap.TotalAmountDue(now),
	}
}

func (s *Server) createPayableHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID        string          `json:"loan_id" validate:"omitempty,uuid"`
		VendorName    string          `json:"vendor_name" validate:"required"`
		InvoiceNumber string          `json:"invoice_number"`
		InvoiceDate   time.Time       `json:"invoice_date"`
		DueDate       time.Time       `json:"due_date"`
		Amount        decimal.Decimal `json:"amount"`
		Terms         int             `json:"terms" validate:"required,oneof=15 30 45 60 90"`
		Category      string          `json:"category"`
		LateFeeRate   decimal.Decimal `json:"late_fee_rate"`
		DiscountRate  decimal.Decimal `json:"discount_rate"`
		Notes         string          `json:"notes"`
		CreatedBy     string          `json:"created_by" validate:"required,uuid"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	input := payables.CreateInput{
		VendorName:    req.VendorName,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		DueDate:       req.DueDate,
		Amount:        req.Amount,
		Terms:         models.PaymentTerms(req.Terms),
		Category:      models.PayableCategory(req.Category),
		LateFeeRate:   req.LateFeeRate,
		DiscountRate:  req.DiscountRate,
		Notes:         req.Notes,
		CreatedBy:     uuid.MustParse(req.CreatedBy),
	}
	if req.LoanID != "" {
		loanID := uuid.MustParse(req.LoanID)
		input.LoanID = &loanID
	}
	ap, err := s.payables.Create(input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.payableView(ap))
}

func (s *Server) getPayableHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid payable ID", http.StatusBadRequest)
		return
	}
	ap, err := s.payables.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.payableView(ap))
}

func (s *Server) listPayablesHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.payables.GetAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]payableResponse, 0, len(all))
	for _, ap := range all {
		views = append(views, s.payableView(ap))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) payPayableHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid payable ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Notes  string          `json:"notes"`
	}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	ap, ok, err := s.payables.MakePayment(id, req.Amount, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "payment rejected: amount must be positive and within the remaining balance", http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, http.StatusOK, s.payableView(ap))
}

func (s *Server) cancelPayableHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid payable ID", http.StatusBadRequest)
		return
	}
	ap, err := s.payables.Cancel(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.payableView(ap))
}

func (s *Server) generatePayablesHandler(w http.ResponseWriter, r *http.Request) {
	created, err := s.payables.GenerateLoanPayables()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/borrowers", s.listBorrowersHandler).Methods("GET")
	router.HandleFunc("/borrowers", s.createBorrowerHandler).Methods("POST")
	router.HandleFunc("/borrowers/{id}", s.getBorrowerHandler).Methods("GET")
	router.HandleFunc("/borrowers/{id}/confirm", s.confirmKYCHandler).Methods("POST")
	router.HandleFunc("/borrowers/{id}/decline", s.declineKYCHandler).Methods("POST")
	router.HandleFunc("/borrowers/{id}/requirements", s.addRequirementHandler).Methods("POST")
	router.HandleFunc("/borrowers/{id}/requirements", s.listRequirementsHandler).Methods("GET")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/approve", s.loanTransitionHandler(s.ledger.ApproveLoan)).Methods("POST")
	router.HandleFunc("/loans/{id}/activate", s.loanTransitionHandler(s.ledger.ActivateLoan)).Methods("POST")
	router.HandleFunc("/loans/{id}/complete", s.loanTransitionHandler(s.ledger.CompleteLoan)).Methods("POST")
	router.HandleFunc("/loans/{id}/default", s.loanTransitionHandler(s.ledger.DefaultLoan)).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/fees", s.attachFeeHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/penalties", s.attachPenaltyHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/penalties/accrued", s.accruedPenaltiesHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/collaterals", s.addCollateralHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/collaterals", s.listCollateralsHandler).Methods("GET")

	router.HandleFunc("/payables", s.listPayablesHandler).Methods("GET")
	router.HandleFunc("/payables", s.createPayableHandler).Methods("POST")
	router.HandleFunc("/payables/generate", s.generatePayablesHandler).Methods("POST")
	router.HandleFunc("/payables/{id}", s.getPayableHandler).Methods("GET")
	router.HandleFunc("/payables/{id}/payments", s.payPayableHandler).Methods("POST")
	router.HandleFunc("/payables/{id}/cancel", s.cancelPayableHandler).Methods("POST")

	return router
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dbPath := envOr("MICROLEND_DB", "microlend.db")
	addr := envOr("MICROLEND_ADDR", ":8080")
	interval, err := time.ParseDuration(envOr("MICROLEND_GENERATE_INTERVAL", "24h"))
	if err != nil {
		log.Fatalf("invalid MICROLEND_GENERATE_INTERVAL: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, clock.System{}, logger)
	router := server.routes()

	// Periodically turn newly activated loans into disbursement payables.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			created, err := server.payables.GenerateLoanPayables()
			if err != nil {
				logger.Error("payable generation failed", "error", err)
				continue
			}
			logger.Info("payable generation complete", "created", created)
		}
	}()

	logger.Info("server starting", "addr", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}
