/*
Package sqlite provides the SQLite-backed implementation of the treasury
storage interfaces.

PURPOSE:
  Implements treasury.Store and treasury.TxStore using SQLite. In
  production the same patterns apply to PostgreSQL with minor SQL dialect
  differences only (FundForUpdate becomes SELECT ... FOR UPDATE).

KEY TABLES:
  churches:                 Congregation registry
  funds:                    Named buckets with running balances (name UNIQUE)
  transactions:             Ledger entries with a balance snapshot
  fund_movements_enhanced:  Append-only balance audit log
  reports:                  Monthly declarations, UNIQUE(church_id, month, year)
  worship_records /
  worship_contributions:    Income line items tagged with a fund bucket
  expense_records:          Outflows, es_honorario_pastoral routes honoraria

CONCURRENCY:
  WithTx holds a write mutex for the duration of the storage transaction,
  and SQLite itself allows a single writer at a time. Together that gives
  the per-fund serialization the core's locking contract requires: the
  balance read and write always happen inside one write transaction.

WAL MODE:
  Opened with WAL so readers don't block during a close.

MIGRATION:
  Schema is auto-migrated on New(). For production use a proper migration
  tool with versioned migrations.

SEE ALSO:
  - treasury/store.go: Interface definitions and contracts
  - treasury/poster.go: The only caller of the balance-mutation methods
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ipupy/tesoreria/treasury"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339
)

// Store implements treasury.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers; see package comment
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls
	// and avoids SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS churches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		pastor TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS funds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		current_balance INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		church_id INTEGER NOT NULL REFERENCES churches(id),
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		diezmos INTEGER NOT NULL DEFAULT 0,
		ofrendas INTEGER NOT NULL DEFAULT 0,
		otros INTEGER NOT NULL DEFAULT 0,
		designados_json TEXT NOT NULL DEFAULT '{}',
		total_entradas INTEGER NOT NULL DEFAULT 0,
		fondo_nacional INTEGER NOT NULL DEFAULT 0,
		gastos_operativos INTEGER NOT NULL DEFAULT 0,
		honorarios_pastoral INTEGER NOT NULL DEFAULT 0,
		estado TEXT NOT NULL DEFAULT 'pendiente',
		balance_status TEXT NOT NULL DEFAULT '',
		balance_delta INTEGER NOT NULL DEFAULT 0,
		closed_at TEXT,
		closed_by TEXT NOT NULL DEFAULT '',
		submitted_by TEXT NOT NULL DEFAULT '',
		submitted_at TEXT,
		processed_by TEXT NOT NULL DEFAULT '',
		processed_at TEXT,
		bank_receipt TEXT NOT NULL DEFAULT '',
		deposit_date TEXT,
		photo_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(church_id, month, year)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		church_id INTEGER REFERENCES churches(id),
		report_id INTEGER REFERENCES reports(id),
		fund_id INTEGER NOT NULL REFERENCES funds(id),
		concept TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		document_number TEXT NOT NULL DEFAULT '',
		amount_in INTEGER NOT NULL DEFAULT 0,
		amount_out INTEGER NOT NULL DEFAULT 0,
		balance INTEGER NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_fund ON transactions(fund_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_church ON transactions(church_id);
	-- Hot path for idempotent re-closing: system postings per report.
	CREATE INDEX IF NOT EXISTS idx_transactions_report_creator
		ON transactions(report_id, created_by) WHERE report_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS fund_movements_enhanced (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fund_id INTEGER NOT NULL REFERENCES funds(id),
		transaction_id INTEGER,
		previous_balance INTEGER NOT NULL,
		movement INTEGER NOT NULL,
		new_balance INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_fund ON fund_movements_enhanced(fund_id, id);

	CREATE TABLE IF NOT EXISTS worship_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		church_id INTEGER NOT NULL REFERENCES churches(id),
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_worship_church_date ON worship_records(church_id, date);

	CREATE TABLE IF NOT EXISTS worship_contributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worship_record_id INTEGER NOT NULL REFERENCES worship_records(id),
		fund_bucket TEXT NOT NULL,
		amount INTEGER NOT NULL,
		donor_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_record ON worship_contributions(worship_record_id);

	CREATE TABLE IF NOT EXISTS expense_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		church_id INTEGER NOT NULL REFERENCES churches(id),
		date TEXT NOT NULL,
		concept TEXT NOT NULL DEFAULT '',
		expense_category TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL,
		es_honorario_pastoral BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_church_date ON expense_records(church_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FUNDS
// =============================================================================

const fundColumns = "id, name, type, description, current_balance, is_active, created_by, created_at, updated_at"

func (s *Store) GetFund(ctx context.Context, id int64) (*treasury.Fund, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE id = ?", id)
	return scanFund(row)
}

func (s *Store) GetFundByName(ctx context.Context, name string) (*treasury.Fund, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE name = ?", name)
	return scanFund(row)
}

func (s *Store) ListFunds(ctx context.Context) ([]treasury.Fund, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE is_active ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []treasury.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, *f)
	}
	return funds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFund(row rowScanner) (*treasury.Fund, error) {
	var f treasury.Fund
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.Name, (*string)(&f.Type), &f.Description,
		&f.CurrentBalance, &f.IsActive, &f.CreatedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	f.UpdatedAt, _ = time.Parse(tsLayout, updatedAt)
	return &f, nil
}

func (s *Store) ListMovements(ctx context.Context, fundID int64, limit, offset int) ([]treasury.FundMovement, error) {
	query := `
		SELECT id, fund_id, transaction_id, previous_balance, movement, new_balance, created_at
		FROM fund_movements_enhanced
		WHERE fund_id = ?
		ORDER BY id ASC` + limitClause(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []treasury.FundMovement
	for rows.Next() {
		var m treasury.FundMovement
		var txID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&m.ID, &m.FundID, &txID, &m.PreviousBalance,
			&m.Movement, &m.NewBalance, &createdAt); err != nil {
			return nil, err
		}
		if txID.Valid {
			v := txID.Int64
			m.TransactionID = &v
		}
		m.CreatedAt, _ = time.Parse(tsLayout, createdAt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const txColumns = "id, date, church_id, report_id, fund_id, concept, provider, document_number, amount_in, amount_out, balance, created_by, created_at"

func (s *Store) GetTransaction(ctx context.Context, id int64) (*treasury.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Store) ListTransactions(ctx context.Context, f treasury.TransactionFilter) ([]treasury.Transaction, error) {
	// Every set filter is AND-combined.
	var where []string
	var args []any
	if f.FundID != nil {
		where = append(where, "fund_id = ?")
		args = append(args, *f.FundID)
	}
	if f.ChurchID != nil {
		where = append(where, "church_id = ?")
		args = append(args, *f.ChurchID)
	}
	if f.ReportID != nil {
		where = append(where, "report_id = ?")
		args = append(args, *f.ReportID)
	}
	if f.Year != nil {
		where = append(where, "strftime('%Y', date) = ?")
		args = append(args, fmt.Sprintf("%04d", *f.Year))
	}
	if f.Month != nil {
		where = append(where, "strftime('%m', date) = ?")
		args = append(args, fmt.Sprintf("%02d", *f.Month))
	}

	query := "SELECT " + txColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC" + limitClause(f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []treasury.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*treasury.Transaction, error) {
	var t treasury.Transaction
	var date, createdAt string
	var churchID, reportID sql.NullInt64
	err := row.Scan(&t.ID, &date, &churchID, &reportID, &t.FundID, &t.Concept,
		&t.Provider, &t.DocumentNumber, &t.AmountIn, &t.AmountOut, &t.Balance,
		&t.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Date, _ = time.Parse(dateLayout, date)
	t.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	if churchID.Valid {
		v := churchID.Int64
		t.ChurchID = &v
	}
	if reportID.Valid {
		v := reportID.Int64
		t.ReportID = &v
	}
	return &t, nil
}

// =============================================================================
// CHURCHES
// =============================================================================

func (s *Store) GetChurch(ctx context.Context, id int64) (*treasury.Church, error) {
	var c treasury.Church
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, city, pastor, phone, created_at FROM churches WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.City, &c.Pastor, &c.Phone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	return &c, nil
}

func (s *Store) ListChurches(ctx context.Context, limit, offset int) ([]treasury.Church, error) {
	query := "SELECT id, name, city, pastor, phone, created_at FROM churches ORDER BY name" +
		limitClause(limit, offset)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var churches []treasury.Church
	for rows.Next() {
		var c treasury.Church
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.City, &c.Pastor, &c.Phone, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(tsLayout, createdAt)
		churches = append(churches, c)
	}
	return churches, rows.Err()
}

// CreateChurch inserts a church and returns its id.
func (s *Store) CreateChurch(ctx context.Context, c treasury.Church) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO churches (name, city, pastor, phone, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		c.Name, c.City, c.Pastor, c.Phone, s.now(),
	).Scan(&id)
	return id, err
}

// =============================================================================
// REPORTS
// =============================================================================

const reportColumns = `id, church_id, month, year, diezmos, ofrendas, otros, designados_json,
	total_entradas, fondo_nacional, gastos_operativos, honorarios_pastoral,
	estado, balance_status, balance_delta, closed_at, closed_by,
	submitted_by, submitted_at, processed_by, processed_at,
	bank_receipt, deposit_date, photo_path, created_at, updated_at`

func (s *Store) GetReport(ctx context.Context, p treasury.Period) (*treasury.Report, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+reportColumns+" FROM reports WHERE church_id = ? AND month = ? AND year = ?",
		p.ChurchID, p.Month, p.Year)
	return scanReport(row)
}

func (s *Store) GetReportByID(ctx context.Context, id int64) (*treasury.Report, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+reportColumns+" FROM reports WHERE id = ?", id)
	return scanReport(row)
}

func scanReport(row rowScanner) (*treasury.Report, error) {
	var r treasury.Report
	var designadosJSON string
	var closedAt, submittedAt, processedAt, depositDate sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.ChurchID, &r.Month, &r.Year,
		&r.Diezmos, &r.Ofrendas, &r.Otros, &designadosJSON,
		&r.TotalEntradas, &r.FondoNacional, &r.GastosOperativos, &r.HonorariosPastoral,
		(*string)(&r.Estado), (*string)(&r.BalanceStatus), &r.BalanceDelta,
		&closedAt, &r.ClosedBy, &r.SubmittedBy, &submittedAt,
		&r.ProcessedBy, &processedAt,
		&r.BankReceipt, &depositDate, &r.PhotoPath, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.Designados = map[treasury.Bucket]int64{}
	json.Unmarshal([]byte(designadosJSON), &r.Designados)
	r.ClosedAt = parseNullTime(closedAt, tsLayout)
	r.SubmittedAt = parseNullTime(submittedAt, tsLayout)
	r.ProcessedAt = parseNullTime(processedAt, tsLayout)
	r.DepositDate = parseNullTime(depositDate, dateLayout)
	r.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(tsLayout, updatedAt)
	return &r, nil
}

// UpdateReportDeposit updates the deposit paperwork fields, the narrow
// allow-list of mutations permitted after closing.
func (s *Store) UpdateReportDeposit(ctx context.Context, reportID int64, bankReceipt string, depositDate *time.Time, photoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dd any
	if depositDate != nil {
		dd = depositDate.Format(dateLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET bank_receipt = ?, deposit_date = ?, photo_path = ?, updated_at = ?
		WHERE id = ?`,
		bankReceipt, dd, photoPath, s.now(), reportID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return treasury.ErrReportNotFound
	}
	return nil
}

// =============================================================================
// SOURCE RECORDS
// =============================================================================

func (s *Store) CreateWorshipRecord(ctx context.Context, rec treasury.WorshipRecord, contributions []treasury.WorshipContribution) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO worship_records (church_id, date, created_at)
		VALUES (?, ?, ?) RETURNING id`,
		rec.ChurchID, rec.Date.Format(dateLayout), s.now(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, c := range contributions {
		var donor any
		if c.DonorID != nil {
			donor = *c.DonorID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO worship_contributions (worship_record_id, fund_bucket, amount, donor_id)
			VALUES (?, ?, ?, ?)`,
			id, string(c.Bucket), c.Amount, donor); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *Store) CreateExpenseRecord(ctx context.Context, rec treasury.ExpenseRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO expense_records (church_id, date, concept, expense_category, amount, es_honorario_pastoral, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rec.ChurchID, rec.Date.Format(dateLayout), rec.Concept, rec.Category,
		rec.Amount, rec.EsHonorarioPastoral, s.now(),
	).Scan(&id)
	return id, err
}

// =============================================================================
// MONTHLY AGGREGATION
// =============================================================================

// MonthlySummary aggregates worship contributions and expenses for one
// church-month in two grouped queries.
func (s *Store) MonthlySummary(ctx context.Context, p treasury.Period) (*treasury.MonthlySummary, error) {
	sum := &treasury.MonthlySummary{
		ByBucket:           map[treasury.Bucket]int64{},
		GastosPorCategoria: map[string]int64{},
	}
	year := fmt.Sprintf("%04d", p.Year)
	month := fmt.Sprintf("%02d", p.Month)

	rows, err := s.db.QueryContext(ctx, `
		SELECT wc.fund_bucket, COALESCE(SUM(wc.amount), 0)
		FROM worship_contributions wc
		JOIN worship_records wr ON wr.id = wc.worship_record_id
		WHERE wr.church_id = ? AND strftime('%Y', wr.date) = ? AND strftime('%m', wr.date) = ?
		GROUP BY wc.fund_bucket`,
		p.ChurchID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var amount int64
		if err := rows.Scan(&bucket, &amount); err != nil {
			return nil, err
		}
		switch treasury.Bucket(bucket) {
		case treasury.BucketDiezmo:
			sum.Diezmos = amount
		case treasury.BucketOfrenda:
			sum.Ofrendas = amount
		case treasury.BucketAnexos:
			sum.Anexos = amount
		case treasury.BucketOtros:
			sum.Otros = amount
		default:
			sum.ByBucket[treasury.Bucket(bucket)] = amount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	expRows, err := s.db.QueryContext(ctx, `
		SELECT expense_category, es_honorario_pastoral, COALESCE(SUM(amount), 0)
		FROM expense_records
		WHERE church_id = ? AND strftime('%Y', date) = ? AND strftime('%m', date) = ?
		GROUP BY expense_category, es_honorario_pastoral`,
		p.ChurchID, year, month)
	if err != nil {
		return nil, err
	}
	defer expRows.Close()

	for expRows.Next() {
		var category string
		var honorario bool
		var amount int64
		if err := expRows.Scan(&category, &honorario, &amount); err != nil {
			return nil, err
		}
		if honorario {
			sum.HonorariosPastoral += amount
			continue
		}
		sum.GastosOperativos += amount
		sum.GastosPorCategoria[category] += amount
	}
	return sum, expRows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within one storage transaction, serialized against
// other writers. Rollback on error, commit otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx treasury.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

// GetOrCreateFund is a race-safe upsert keyed on the unique name. The no-op
// DO UPDATE makes RETURNING yield the existing row on conflict.
func (ts *txStore) GetOrCreateFund(ctx context.Context, name string, fundType treasury.FundType, description string) (*treasury.Fund, error) {
	now := ts.parent.now()
	row := ts.tx.QueryRowContext(ctx, `
		INSERT INTO funds (name, type, description, current_balance, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, 0, TRUE, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING `+fundColumns,
		name, string(fundType), description, treasury.SystemActor, now, now)
	return scanFund(row)
}

// FundForUpdate reads the fund row inside the write transaction. SQLite's
// single-writer model is the row lock here; a Postgres port adds FOR UPDATE.
// The query runs on the transaction's own connection: with a pool capped at
// one connection, any lookup through the pool would wait on itself.
func (ts *txStore) FundForUpdate(ctx context.Context, fundID int64) (*treasury.Fund, error) {
	row := ts.tx.QueryRowContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE id = ?", fundID)
	fund, err := scanFund(row)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, treasury.ErrFundNotFound
	}
	return fund, nil
}

func (ts *txStore) SetFundBalance(ctx context.Context, fundID int64, newBalance int64) error {
	_, err := ts.tx.ExecContext(ctx,
		"UPDATE funds SET current_balance = ?, updated_at = ? WHERE id = ?",
		newBalance, ts.parent.now(), fundID)
	return err
}

func (ts *txStore) InsertTransaction(ctx context.Context, t *treasury.Transaction) (int64, error) {
	var churchID, reportID any
	if t.ChurchID != nil {
		churchID = *t.ChurchID
	}
	if t.ReportID != nil {
		reportID = *t.ReportID
	}

	var id int64
	err := ts.tx.QueryRowContext(ctx, `
		INSERT INTO transactions
		(date, church_id, report_id, fund_id, concept, provider, document_number,
		 amount_in, amount_out, balance, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		t.Date.Format(dateLayout), churchID, reportID, t.FundID, t.Concept,
		t.Provider, t.DocumentNumber, t.AmountIn, t.AmountOut, t.Balance,
		t.CreatedBy, ts.parent.now(),
	).Scan(&id)
	return id, err
}

func (ts *txStore) DeleteTransactionRow(ctx context.Context, id int64) error {
	res, err := ts.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return treasury.ErrTransactionNotFound
	}
	return nil
}

func (ts *txStore) AppendMovement(ctx context.Context, m treasury.FundMovement) error {
	var txID any
	if m.TransactionID != nil {
		txID = *m.TransactionID
	}
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO fund_movements_enhanced
		(fund_id, transaction_id, previous_balance, movement, new_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.FundID, txID, m.PreviousBalance, m.Movement, m.NewBalance, ts.parent.now())
	return err
}

func (ts *txStore) GetTransactionForUpdate(ctx context.Context, id int64) (*treasury.Transaction, error) {
	row := ts.tx.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, treasury.ErrTransactionNotFound
	}
	return t, err
}

func (ts *txStore) SystemTransactions(ctx context.Context, reportID int64) ([]treasury.Transaction, error) {
	rows, err := ts.tx.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE report_id = ? AND created_by = ? ORDER BY id ASC",
		reportID, treasury.SystemActor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []treasury.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// UpsertReport inserts or updates the (church_id, month, year) row. The
// deposit paperwork fields are preserved on update; the financial totals
// are overwritten with the recalculated values.
func (ts *txStore) UpsertReport(ctx context.Context, r *treasury.Report) (int64, error) {
	designadosJSON, _ := json.Marshal(r.Designados)
	now := ts.parent.now()

	var id int64
	err := ts.tx.QueryRowContext(ctx, `
		INSERT INTO reports
		(church_id, month, year, diezmos, ofrendas, otros, designados_json,
		 total_entradas, fondo_nacional, gastos_operativos, honorarios_pastoral,
		 estado, balance_status, balance_delta, closed_at, closed_by,
		 submitted_by, submitted_at, processed_by, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(church_id, month, year) DO UPDATE SET
			diezmos = excluded.diezmos,
			ofrendas = excluded.ofrendas,
			otros = excluded.otros,
			designados_json = excluded.designados_json,
			total_entradas = excluded.total_entradas,
			fondo_nacional = excluded.fondo_nacional,
			gastos_operativos = excluded.gastos_operativos,
			honorarios_pastoral = excluded.honorarios_pastoral,
			estado = excluded.estado,
			balance_status = excluded.balance_status,
			balance_delta = excluded.balance_delta,
			closed_at = COALESCE(excluded.closed_at, reports.closed_at),
			closed_by = CASE WHEN excluded.closed_by != '' THEN excluded.closed_by ELSE reports.closed_by END,
			submitted_by = CASE WHEN excluded.submitted_by != '' THEN excluded.submitted_by ELSE reports.submitted_by END,
			submitted_at = COALESCE(excluded.submitted_at, reports.submitted_at),
			processed_by = CASE WHEN excluded.processed_by != '' THEN excluded.processed_by ELSE reports.processed_by END,
			processed_at = COALESCE(excluded.processed_at, reports.processed_at),
			updated_at = excluded.updated_at
		RETURNING id`,
		r.ChurchID, r.Month, r.Year, r.Diezmos, r.Ofrendas, r.Otros, string(designadosJSON),
		r.TotalEntradas, r.FondoNacional, r.GastosOperativos, r.HonorariosPastoral,
		string(r.Estado), string(r.BalanceStatus), r.BalanceDelta,
		formatNullTime(r.ClosedAt, tsLayout), r.ClosedBy,
		r.SubmittedBy, formatNullTime(r.SubmittedAt, tsLayout),
		r.ProcessedBy, formatNullTime(r.ProcessedAt, tsLayout),
		now, now,
	).Scan(&id)
	return id, err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) now() string {
	return time.Now().UTC().Format(tsLayout)
}

// limitClause builds the trailing LIMIT/OFFSET. Limit zero means no limit;
// SQLite needs LIMIT -1 to express an offset without one.
func limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

func parseNullTime(ns sql.NullString, layout string) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(layout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time, layout string) any {
	if t == nil {
		return nil
	}
	return t.Format(layout)
}
