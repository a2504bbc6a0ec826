/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  All amounts are whole Guaraníes as JSON numbers. There is no fractional
  unit, so int64 round-trips exactly.

VALIDATION:
  Validation is done in handlers and in the treasury core, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - treasury/calculator.go: LedgerView is returned as-is, already tagged
*/
package api

import (
	"time"

	"github.com/ipupy/tesoreria/treasury"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PostTransactionRequest is the request to post a manual ledger entry.
type PostTransactionRequest struct {
	FundID         int64  `json:"fund_id"`
	Date           string `json:"date,omitempty"` // YYYY-MM-DD, today if empty
	Concept        string `json:"concept"`
	Provider       string `json:"provider,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	AmountIn       int64  `json:"amount_in"`
	AmountOut      int64  `json:"amount_out"`
	ChurchID       *int64 `json:"church_id,omitempty"`
	ReportID       *int64 `json:"report_id,omitempty"`
}

// ClosePeriodRequest is the request to close a church-month.
type ClosePeriodRequest struct {
	ChurchID int64 `json:"church_id"`
	Month    int   `json:"month"`
	Year     int   `json:"year"`
	Force    bool  `json:"force,omitempty"`
}

// SubmitReportRequest is the request to submit the monthly report.
type SubmitReportRequest struct {
	ChurchID int64 `json:"church_id"`
	Month    int   `json:"month"`
	Year     int   `json:"year"`
}

// DepositRequest updates the deposit paperwork on a closed report.
type DepositRequest struct {
	BankReceipt string `json:"bank_receipt"`
	DepositDate string `json:"deposit_date,omitempty"` // YYYY-MM-DD
	PhotoPath   string `json:"photo_path,omitempty"`
}

// CreateChurchRequest is the request to register a congregation.
type CreateChurchRequest struct {
	Name   string `json:"name"`
	City   string `json:"city,omitempty"`
	Pastor string `json:"pastor,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// ContributionRequest is one tagged line item of a worship record.
type ContributionRequest struct {
	Bucket  string `json:"fund_bucket"`
	Amount  int64  `json:"amount"`
	DonorID *int64 `json:"donor_id,omitempty"`
}

// CreateWorshipRecordRequest registers one worship service with its
// contributions.
type CreateWorshipRecordRequest struct {
	ChurchID      int64                 `json:"church_id"`
	Date          string                `json:"date"` // YYYY-MM-DD
	Contributions []ContributionRequest `json:"contributions"`
}

// CreateExpenseRequest registers one outflow.
type CreateExpenseRequest struct {
	ChurchID            int64  `json:"church_id"`
	Date                string `json:"date"` // YYYY-MM-DD
	Concept             string `json:"concept"`
	Category            string `json:"category,omitempty"`
	Amount              int64  `json:"amount"`
	EsHonorarioPastoral bool   `json:"es_honorario_pastoral,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// FundDTO represents a fund in API responses.
type FundDTO struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Description    string `json:"description,omitempty"`
	CurrentBalance int64  `json:"current_balance"`
	IsActive       bool   `json:"is_active"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// TransactionDTO represents a ledger entry.
type TransactionDTO struct {
	ID             int64  `json:"id"`
	Date           string `json:"date"`
	ChurchID       *int64 `json:"church_id,omitempty"`
	ReportID       *int64 `json:"report_id,omitempty"`
	FundID         int64  `json:"fund_id"`
	Concept        string `json:"concept"`
	Provider       string `json:"provider,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	AmountIn       int64  `json:"amount_in"`
	AmountOut      int64  `json:"amount_out"`
	Balance        int64  `json:"balance"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// MovementDTO represents one audit row of a fund's balance history.
type MovementDTO struct {
	ID              int64  `json:"id"`
	FundID          int64  `json:"fund_id"`
	TransactionID   *int64 `json:"transaction_id,omitempty"`
	PreviousBalance int64  `json:"previous_balance"`
	Movement        int64  `json:"movement"`
	NewBalance      int64  `json:"new_balance"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// ChurchDTO represents a congregation.
type ChurchDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	City      string `json:"city,omitempty"`
	Pastor    string `json:"pastor,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ReportDTO represents the monthly declaration.
type ReportDTO struct {
	ID                 int64            `json:"id"`
	ChurchID           int64            `json:"church_id"`
	Month              int              `json:"month"`
	Year               int              `json:"year"`
	Diezmos            int64            `json:"diezmos"`
	Ofrendas           int64            `json:"ofrendas"`
	Otros              int64            `json:"otros"`
	Designados         map[string]int64 `json:"designados,omitempty"`
	TotalEntradas      int64            `json:"total_entradas"`
	FondoNacional      int64            `json:"fondo_nacional"`
	GastosOperativos   int64            `json:"gastos_operativos"`
	HonorariosPastoral int64            `json:"honorarios_pastoral"`
	Estado             string           `json:"estado"`
	BalanceStatus      string           `json:"balance_status,omitempty"`
	BalanceDelta       int64            `json:"balance_delta"`
	ClosedAt           *string          `json:"closed_at,omitempty"`
	ClosedBy           string           `json:"closed_by,omitempty"`
	SubmittedBy        string           `json:"submitted_by,omitempty"`
	SubmittedAt        *string          `json:"submitted_at,omitempty"`
	BankReceipt        string           `json:"bank_receipt,omitempty"`
	DepositDate        *string          `json:"deposit_date,omitempty"`
	PhotoPath          string           `json:"photo_path,omitempty"`
	CreatedAt          string           `json:"created_at,omitempty"`
	UpdatedAt          string           `json:"updated_at,omitempty"`
}

// ErrorResponse is the standard error response. Suggestions carry the
// remediation hints from unclosable-period rejections.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Details     any      `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func toFundDTO(f treasury.Fund) FundDTO {
	return FundDTO{
		ID:             f.ID,
		Name:           f.Name,
		Type:           string(f.Type),
		Description:    f.Description,
		CurrentBalance: f.CurrentBalance,
		IsActive:       f.IsActive,
		CreatedBy:      f.CreatedBy,
		CreatedAt:      f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      f.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(t treasury.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             t.ID,
		Date:           t.Date.Format(dateLayout),
		ChurchID:       t.ChurchID,
		ReportID:       t.ReportID,
		FundID:         t.FundID,
		Concept:        t.Concept,
		Provider:       t.Provider,
		DocumentNumber: t.DocumentNumber,
		AmountIn:       t.AmountIn,
		AmountOut:      t.AmountOut,
		Balance:        t.Balance,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []treasury.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

func toMovementDTO(m treasury.FundMovement) MovementDTO {
	return MovementDTO{
		ID:              m.ID,
		FundID:          m.FundID,
		TransactionID:   m.TransactionID,
		PreviousBalance: m.PreviousBalance,
		Movement:        m.Movement,
		NewBalance:      m.NewBalance,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
}

func toChurchDTO(c treasury.Church) ChurchDTO {
	return ChurchDTO{
		ID:        c.ID,
		Name:      c.Name,
		City:      c.City,
		Pastor:    c.Pastor,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toReportDTO(r treasury.Report) ReportDTO {
	designados := make(map[string]int64, len(r.Designados))
	for b, v := range r.Designados {
		designados[string(b)] = v
	}
	return ReportDTO{
		ID:                 r.ID,
		ChurchID:           r.ChurchID,
		Month:              r.Month,
		Year:               r.Year,
		Diezmos:            r.Diezmos,
		Ofrendas:           r.Ofrendas,
		Otros:              r.Otros,
		Designados:         designados,
		TotalEntradas:      r.TotalEntradas,
		FondoNacional:      r.FondoNacional,
		GastosOperativos:   r.GastosOperativos,
		HonorariosPastoral: r.HonorariosPastoral,
		Estado:             string(r.Estado),
		BalanceStatus:      string(r.BalanceStatus),
		BalanceDelta:       r.BalanceDelta,
		ClosedAt:           fmtTimePtr(r.ClosedAt, time.RFC3339),
		ClosedBy:           r.ClosedBy,
		SubmittedBy:        r.SubmittedBy,
		SubmittedAt:        fmtTimePtr(r.SubmittedAt, time.RFC3339),
		BankReceipt:        r.BankReceipt,
		DepositDate:        fmtTimePtr(r.DepositDate, dateLayout),
		PhotoPath:          r.PhotoPath,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
}

func fmtTimePtr(t *time.Time, layout string) *string {
	if t == nil {
		return nil
	}
	s := t.Format(layout)
	return &s
}
