/*
handlers.go - HTTP API handlers for the treasury system

PURPOSE:
  Exposes the treasury core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Ledger:
    GET    /api/ledger                    Monthly reconciliation view
    POST   /api/periods/close             Close a church-month

  Reports:
    POST   /api/reports                   Submit the monthly report
    GET    /api/reports                   Get report by period
    GET    /api/reports/{id}              Get report by id
    PUT    /api/reports/{id}/deposit      Update deposit paperwork

  Transactions:
    GET    /api/transactions              List with filters
    POST   /api/transactions              Post a manual entry
    GET    /api/transactions/{id}         Get one entry
    DELETE /api/transactions/{id}         Reverse and remove

  Funds:
    GET    /api/funds                     List active funds
    GET    /api/funds/{id}                Get fund with balance
    GET    /api/funds/{id}/movements      Balance audit history

  Churches:
    GET    /api/churches                  List (default limit 100)
    POST   /api/churches                  Register a congregation
    GET    /api/churches/{id}             Get one church

  Source records:
    POST   /api/worship-records           Register a worship service
    POST   /api/expenses                  Register an expense

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: Validation errors, invalid input
  - 401: Missing actor identity on a mutating endpoint
  - 403: Church actor targeting another church
  - 404: Resource not found
  - 409: Business-rule conflict (insufficient funds, unclosable period)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ipupy/tesoreria/treasury"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  treasury.Store
	Calc   *treasury.Calculator
	Poster *treasury.TransactionPoster
	Closer *treasury.PeriodCloser
}

// NewHandler wires the treasury core onto one store.
func NewHandler(store treasury.Store, calc *treasury.Calculator, poster *treasury.TransactionPoster, closer *treasury.PeriodCloser) *Handler {
	return &Handler{Store: store, Calc: calc, Poster: poster, Closer: closer}
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns the monthly reconciliation view for one church-month.
// GET /api/ledger?church_id=&month=&year=
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	period, ok := periodFromQuery(w, r)
	if !ok {
		return
	}
	if actor, ok := actorFrom(r.Context()); ok && !actor.CanActOn(period.ChurchID) {
		writeError(w, http.StatusForbidden, "Not allowed to view this church", nil)
		return
	}

	view, err := h.Calc.BuildMonthlyLedger(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClosePeriod closes one church-month, generating the fund transactions.
// POST /api/periods/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ClosePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Closer.ClosePeriod(r.Context(),
		treasury.Period{ChurchID: req.ChurchID, Month: req.Month, Year: req.Year},
		req.Force, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// SubmitReport creates or resubmits the monthly report for a period.
// POST /api/reports
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Closer.SubmitReport(r.Context(),
		treasury.Period{ChurchID: req.ChurchID, Month: req.Month, Year: req.Year}, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetReportByPeriod returns the report for one church-month.
// GET /api/reports?church_id=&month=&year=
func (h *Handler) GetReportByPeriod(w http.ResponseWriter, r *http.Request) {
	period, ok := periodFromQuery(w, r)
	if !ok {
		return
	}

	report, err := h.Store.GetReport(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get report", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Report not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*report))
}

// GetReport returns one report by id.
// GET /api/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	report, err := h.Store.GetReportByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get report", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Report not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*report))
}

// UpdateDeposit updates the deposit paperwork fields on a report. These
// are the only fields writable after the period is closed.
// PUT /api/reports/{id}/deposit
func (h *Handler) UpdateDeposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report, err := h.Store.GetReportByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get report", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Report not found", nil)
		return
	}
	if !actor.CanActOn(report.ChurchID) {
		writeError(w, http.StatusForbidden, "Not allowed to modify this church's report", nil)
		return
	}

	var depositDate *time.Time
	if req.DepositDate != "" {
		d, err := time.Parse(dateLayout, req.DepositDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid deposit_date format (use YYYY-MM-DD)", err)
			return
		}
		depositDate = &d
	}

	if err := h.Store.UpdateReportDeposit(r.Context(), id, req.BankReceipt, depositDate, req.PhotoPath); err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := h.Store.GetReportByID(r.Context(), id)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*updated))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// PostTransaction posts a manual ledger entry against one fund.
// POST /api/transactions
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}
	if req.ChurchID != nil && !actor.CanActOn(*req.ChurchID) {
		writeError(w, http.StatusForbidden, "Not allowed to post for this church", nil)
		return
	}

	posted, err := h.Poster.Post(r.Context(), treasury.Posting{
		FundID:         req.FundID,
		AmountIn:       req.AmountIn,
		AmountOut:      req.AmountOut,
		Concept:        req.Concept,
		Provider:       req.Provider,
		DocumentNumber: req.DocumentNumber,
		ChurchID:       req.ChurchID,
		ReportID:       req.ReportID,
		Date:           date,
		Actor:          actor.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*posted))
}

// GetTransaction returns one ledger entry.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	t, err := h.Store.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get transaction", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

// ListTransactions lists ledger entries with AND-combined filters.
// GET /api/transactions?fund_id=&church_id=&report_id=&month=&year=&limit=&offset=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := treasury.TransactionFilter{
		FundID:   int64QueryPtr(q.Get("fund_id")),
		ChurchID: int64QueryPtr(q.Get("church_id")),
		ReportID: int64QueryPtr(q.Get("report_id")),
		Month:    intQueryPtr(q.Get("month")),
		Year:     intQueryPtr(q.Get("year")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	txs, err := h.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// DeleteTransaction reverses a transaction's balance effect and removes
// the row, leaving an audit movement behind.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.Poster.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

// ListFunds returns all active funds with their balances.
// GET /api/funds
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.Store.ListFunds(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list funds", err)
		return
	}

	dtos := make([]FundDTO, len(funds))
	for i, f := range funds {
		dtos[i] = toFundDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFund returns one fund.
// GET /api/funds/{id}
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	fund, err := h.Store.GetFund(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get fund", err)
		return
	}
	if fund == nil {
		writeError(w, http.StatusNotFound, "Fund not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(*fund))
}

// ListFundMovements returns the balance audit history of one fund.
// GET /api/funds/{id}/movements?limit=&offset=
func (h *Handler) ListFundMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	movements, err := h.Store.ListMovements(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CHURCH HANDLERS
// =============================================================================

// defaultChurchLimit bounds unpaginated church listings.
const defaultChurchLimit = 100

// ListChurches returns registered congregations.
// GET /api/churches?limit=&offset=
func (h *Handler) ListChurches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = defaultChurchLimit
	}

	churches, err := h.Store.ListChurches(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list churches", err)
		return
	}

	dtos := make([]ChurchDTO, len(churches))
	for i, c := range churches {
		dtos[i] = toChurchDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChurch returns one congregation.
// GET /api/churches/{id}
func (h *Handler) GetChurch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	church, err := h.Store.GetChurch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get church", err)
		return
	}
	if church == nil {
		writeError(w, http.StatusNotFound, "Church not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toChurchDTO(*church))
}

// CreateChurch registers a congregation. Admin only.
// POST /api/churches
func (h *Handler) CreateChurch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != treasury.RoleAdmin {
		writeError(w, http.StatusForbidden, "Only admins may register churches", nil)
		return
	}

	var req CreateChurchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Church name is required", nil)
		return
	}

	id, err := h.Store.CreateChurch(r.Context(), treasury.Church{
		Name:   req.Name,
		City:   req.City,
		Pastor: req.Pastor,
		Phone:  req.Phone,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create church", err)
		return
	}

	church, err := h.Store.GetChurch(r.Context(), id)
	if err != nil || church == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload church", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChurchDTO(*church))
}

// =============================================================================
// SOURCE RECORD HANDLERS
// =============================================================================

// CreateWorshipRecord registers one worship service with its tagged
// contributions. These rows feed the monthly ledger aggregation.
// POST /api/worship-records
func (h *Handler) CreateWorshipRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateWorshipRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !actor.CanActOn(req.ChurchID) {
		writeError(w, http.StatusForbidden, "Not allowed to record for this church", nil)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if len(req.Contributions) == 0 {
		writeError(w, http.StatusBadRequest, "At least one contribution is required", nil)
		return
	}

	contributions := make([]treasury.WorshipContribution, len(req.Contributions))
	for i, c := range req.Contributions {
		if c.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "Contribution amounts must be positive", nil)
			return
		}
		contributions[i] = treasury.WorshipContribution{
			Bucket:  treasury.Bucket(c.Bucket),
			Amount:  c.Amount,
			DonorID: c.DonorID,
		}
	}

	id, err := h.Store.CreateWorshipRecord(r.Context(),
		treasury.WorshipRecord{ChurchID: req.ChurchID, Date: date}, contributions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create worship record", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// CreateExpense registers one outflow for a church-month.
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !actor.CanActOn(req.ChurchID) {
		writeError(w, http.StatusForbidden, "Not allowed to record for this church", nil)
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "Expense amount must be positive", nil)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	id, err := h.Store.CreateExpenseRecord(r.Context(), treasury.ExpenseRecord{
		ChurchID:            req.ChurchID,
		Date:                date,
		Concept:             req.Concept,
		Category:            req.Category,
		Amount:              req.Amount,
		EsHonorarioPastoral: req.EsHonorarioPastoral,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps treasury errors to HTTP status codes. Unclosable
// periods and insufficient balances are conflicts; the response carries
// the remediation suggestions when the core provides them.
func writeDomainError(w http.ResponseWriter, err error) {
	var notClosable *treasury.PeriodNotClosableError
	if errors.As(err, &notClosable) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:       notClosable.Message,
			Code:        string(notClosable.Status),
			Suggestions: notClosable.Suggestions,
		})
		return
	}

	var insufficient *treasury.InsufficientFundsError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: insufficient.Error(),
			Code:  "insufficient_funds",
			Details: map[string]int64{
				"fund_id":   insufficient.FundID,
				"available": insufficient.Available,
				"requested": insufficient.Requested,
			},
		})
		return
	}

	switch {
	case errors.Is(err, treasury.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not allowed to act on this church", err)
	case treasury.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case treasury.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func periodFromQuery(w http.ResponseWriter, r *http.Request) (treasury.Period, bool) {
	q := r.URL.Query()
	churchID, err1 := strconv.ParseInt(q.Get("church_id"), 10, 64)
	month, err2 := strconv.Atoi(q.Get("month"))
	year, err3 := strconv.Atoi(q.Get("year"))
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, http.StatusBadRequest, "church_id, month and year query params are required", nil)
		return treasury.Period{}, false
	}

	p := treasury.Period{ChurchID: churchID, Month: month, Year: year}
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, treasury.ErrInvalidPeriod.Error(), nil)
		return treasury.Period{}, false
	}
	return p, true
}

func int64QueryPtr(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func intQueryPtr(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
