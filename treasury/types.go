/*
Package treasury implements the national church treasury core.

PURPOSE:
  This package contains the domain types and algorithms for the monthly
  ledger: fund balances, the transaction poster, the monthly totals
  calculator, and the period closer. Everything here coordinates through
  the Store interface; there is no package-level state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Fund: A named bucket of money with a running balance
  - Transaction: A ledger entry (amount_in XOR amount_out) with a balance snapshot
  - FundMovement: Append-only audit row for every balance change
  - Report: The monthly declaration for one church
  - Actor: Resolved identity (admin or church user), passed down as a value

DESIGN PRINCIPLES:
  1. Amounts are whole Guaraníes, stored as int64. No fractional units exist
     in the currency, so integer comparison with an epsilon of 1 is exact.
  2. Fund balances are mutated only through the TransactionPoster; the
     movement log can reconstruct current_balance at any time.
  3. Corrections are reversals, not edits. Deleting a transaction reapplies
     the inverse movement and leaves an audit row behind.

SEE ALSO:
  - poster.go: The only writer of fund balances
  - calculator.go: Monthly ledger view and balance classification
  - closer.go: Period closing and report auto-transactions
*/
package treasury

import "time"

// =============================================================================
// FUNDS
// =============================================================================

type FundType string

const (
	FundNacional      FundType = "nacional"
	FundDesignado     FundType = "designado"
	FundConstruccion  FundType = "construccion"
	FundMisionero     FundType = "misionero"
	FundEspecial      FundType = "especial"
	FundObrasBeneficas FundType = "obras_beneficas"
	FundEducativo     FundType = "educativo"
	FundOtro          FundType = "otro"
)

// Fund is a named bucket of money. CurrentBalance always equals the sum of
// all movements ever posted against it.
type Fund struct {
	ID             int64
	Name           string
	Type           FundType
	Description    string
	CurrentBalance int64
	IsActive       bool
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Transaction is a ledger entry against one fund. Exactly one of AmountIn
// and AmountOut is positive; the other is zero. Balance is the fund's
// balance immediately after this transaction was posted.
type Transaction struct {
	ID             int64
	Date           time.Time
	ChurchID       *int64
	ReportID       *int64
	FundID         int64
	Concept        string
	Provider       string
	DocumentNumber string
	AmountIn       int64
	AmountOut      int64
	Balance        int64
	CreatedBy      string
	CreatedAt      time.Time
}

// Movement returns the signed balance delta this transaction applied.
func (t Transaction) Movement() int64 {
	return t.AmountIn - t.AmountOut
}

// SystemActor is the created_by value for auto-generated postings. The
// closer's idempotence relies on it: re-closing reverses exactly the
// transactions with (report_id, created_by = SystemActor).
const SystemActor = "system"

// =============================================================================
// FUND MOVEMENTS (audit log)
// =============================================================================

// FundMovement is one append-only audit row per balance change.
// TransactionID is nil for reversals and manual balance seeding.
type FundMovement struct {
	ID              int64
	FundID          int64
	TransactionID   *int64
	PreviousBalance int64
	Movement        int64
	NewBalance      int64
	CreatedAt       time.Time
}

// =============================================================================
// CHURCHES
// =============================================================================

type Church struct {
	ID        int64
	Name      string
	City      string
	Pastor    string
	Phone     string
	CreatedAt time.Time
}

// =============================================================================
// REPORTS
// =============================================================================

type ReportStatus string

const (
	ReportPendiente ReportStatus = "pendiente"
	ReportProcesado ReportStatus = "procesado"
	ReportAprobado  ReportStatus = "aprobado"
	ReportRechazado ReportStatus = "rechazado"
	ReportEliminado ReportStatus = "eliminado"
)

// Report is the monthly declaration for one church. At most one row exists
// per (ChurchID, Month, Year); the store enforces it with a unique index.
type Report struct {
	ID       int64
	ChurchID int64
	Month    int
	Year     int

	// Financial totals, copied from the calculated ledger at close time.
	Diezmos            int64
	Ofrendas           int64
	Otros              int64
	Designados         map[Bucket]int64
	TotalEntradas      int64
	FondoNacional      int64
	GastosOperativos   int64
	HonorariosPastoral int64

	// Lifecycle.
	Estado        ReportStatus
	BalanceStatus BalanceStatus
	BalanceDelta  int64
	ClosedAt      *time.Time
	ClosedBy      string
	SubmittedBy   string
	SubmittedAt   *time.Time
	ProcessedBy   string
	ProcessedAt   *time.Time

	// Deposit paperwork. These are the only mutable fields after closing.
	BankReceipt string
	DepositDate *time.Time
	PhotoPath   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// WORSHIP AND EXPENSE RECORDS (read side of the calculator)
// =============================================================================

// WorshipRecord is one worship service; its contributions carry the money.
type WorshipRecord struct {
	ID        int64
	ChurchID  int64
	Date      time.Time
	CreatedAt time.Time
}

// WorshipContribution is a single tagged line item within a worship record.
type WorshipContribution struct {
	ID              int64
	WorshipRecordID int64
	Bucket          Bucket
	Amount          int64
	DonorID         *int64
}

// ExpenseRecord is a single outflow. EsHonorarioPastoral routes it into the
// pastoral honoraria total instead of generic operating expenses.
type ExpenseRecord struct {
	ID                  int64
	ChurchID            int64
	Date                time.Time
	Concept             string
	Category            string
	Amount              int64
	EsHonorarioPastoral bool
	CreatedAt           time.Time
}

// =============================================================================
// ACTOR - resolved once at the boundary, passed down as a value
// =============================================================================

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleChurch Role = "church"
)

// Actor is the authenticated identity acting on the treasury. For church
// users ChurchID is their own church; admins have ChurchID zero.
type Actor struct {
	Role     Role
	ChurchID int64
	Email    string
}

// CanActOn reports whether the actor may touch the given church's data.
// The request layer enforces this before the core is invoked; handlers in
// this repo call it once at the boundary.
func (a Actor) CanActOn(churchID int64) bool {
	return a.Role == RoleAdmin || a.ChurchID == churchID
}

// =============================================================================
// PERIOD
// =============================================================================

// Period identifies one church-month. The report unique key.
type Period struct {
	ChurchID int64 `json:"church_id"`
	Month    int   `json:"month"`
	Year     int   `json:"year"`
}

func (p Period) Valid() bool {
	return p.ChurchID > 0 && p.Month >= 1 && p.Month <= 12 && p.Year >= 1900
}
