/*
store.go - Persistence interface for the treasury core

PURPOSE:
  Defines the interface between the domain logic and the database. The
  relational engine is a given capability: rows, transactions, row locking.
  Implementations live outside this package (store/sqlite).

KEY INTERFACES:
  Store:   All reads plus non-transactional fund lookups
  TxStore: The write surface, only reachable inside Store.WithTx

LOCKING CONTRACT:
  FundForUpdate must return the fund row under a row lock (or an
  equivalent serialization guarantee) so that two concurrent posters
  against the same fund cannot both read a stale balance. On Postgres this
  is SELECT ... FOR UPDATE; on SQLite the enclosing write transaction
  already serializes writers.

GET-OR-CREATE CONTRACT:
  GetOrCreateFund must be race-safe: a unique constraint on name plus an
  upsert, never a check-then-insert.

SEE ALSO:
  - poster.go: The only caller of the balance-mutation methods
  - store/sqlite/sqlite.go: Concrete implementation
*/
package treasury

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// TransactionFilter selects transactions for listing. Every set field is
// AND-combined. Limit zero means no limit.
type TransactionFilter struct {
	FundID   *int64
	ChurchID *int64
	ReportID *int64
	Month    *int
	Year     *int
	Limit    int
	Offset   int
}

// MonthlySummary is the database-side aggregation over worship
// contributions and expense records for one church-month.
type MonthlySummary struct {
	Diezmos            int64
	Ofrendas           int64
	Anexos             int64
	Otros              int64
	ByBucket           map[Bucket]int64 // designated buckets only
	GastosOperativos   int64
	GastosPorCategoria map[string]int64
	HonorariosPastoral int64
}

// =============================================================================
// STORE
// =============================================================================

// Store is the read surface plus the transaction boundary. All mutations
// happen inside WithTx so a failure rolls back every row touched.
//
// Get* methods return (nil, nil) for a missing row; callers translate to
// the package's not-found sentinels where the absence is an error.
type Store interface {
	// Funds
	GetFund(ctx context.Context, id int64) (*Fund, error)
	GetFundByName(ctx context.Context, name string) (*Fund, error)
	ListFunds(ctx context.Context) ([]Fund, error)
	ListMovements(ctx context.Context, fundID int64, limit, offset int) ([]FundMovement, error)

	// Transactions
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// Churches
	GetChurch(ctx context.Context, id int64) (*Church, error)
	ListChurches(ctx context.Context, limit, offset int) ([]Church, error)
	CreateChurch(ctx context.Context, c Church) (int64, error)

	// Reports
	GetReport(ctx context.Context, p Period) (*Report, error)
	GetReportByID(ctx context.Context, id int64) (*Report, error)

	// UpdateReportDeposit mutates the deposit paperwork fields only. The
	// one permitted write to a report outside the closing transaction.
	UpdateReportDeposit(ctx context.Context, reportID int64, bankReceipt string, depositDate *time.Time, photoPath string) error

	// Source records
	CreateWorshipRecord(ctx context.Context, rec WorshipRecord, contributions []WorshipContribution) (int64, error)
	CreateExpenseRecord(ctx context.Context, rec ExpenseRecord) (int64, error)

	// MonthlySummary aggregates worship contributions and expense records
	// for one church-month. Read-only and side-effect free.
	MonthlySummary(ctx context.Context, p Period) (*MonthlySummary, error)

	// WithTx runs fn inside one storage transaction. If fn returns an
	// error the transaction rolls back and no partial state is observable.
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the write surface, valid only for the duration of one WithTx.
type TxStore interface {
	// GetOrCreateFund looks up a fund by unique name, inserting it with a
	// zero balance if absent. Safe under concurrent calls for the same name.
	GetOrCreateFund(ctx context.Context, name string, fundType FundType, description string) (*Fund, error)

	// FundForUpdate reads a fund row under a row lock. Everything the
	// poster needs about the fund comes from this call; it must never
	// reach outside the transaction for fund data.
	// Returns ErrFundNotFound for a missing row.
	FundForUpdate(ctx context.Context, fundID int64) (*Fund, error)

	// SetFundBalance writes the new balance and updated_at unconditionally.
	SetFundBalance(ctx context.Context, fundID int64, newBalance int64) error

	// InsertTransaction persists the row and returns its generated id.
	InsertTransaction(ctx context.Context, t *Transaction) (int64, error)

	// DeleteTransactionRow removes the transaction row. Balance reversal is
	// the poster's job, not the store's.
	DeleteTransactionRow(ctx context.Context, id int64) error

	// AppendMovement appends one audit row. Never updated or deleted.
	AppendMovement(ctx context.Context, m FundMovement) error

	// GetTransactionForUpdate reads a transaction inside the transaction
	// scope so delete-and-reverse works on a consistent snapshot.
	// Returns ErrTransactionNotFound for a missing row.
	GetTransactionForUpdate(ctx context.Context, id int64) (*Transaction, error)

	// SystemTransactions returns the auto-generated postings for a report,
	// i.e. rows with created_by = SystemActor.
	SystemTransactions(ctx context.Context, reportID int64) ([]Transaction, error)

	// UpsertReport inserts or updates the (church_id, month, year) row and
	// returns its id.
	UpsertReport(ctx context.Context, r *Report) (int64, error)
}

// Clock abstracts time for deterministic tests. The zero value uses
// time.Now.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
