/*
closer.go - Period Closer and report auto-transaction generator

PURPOSE:
  Orchestrates closing a church-month: validates closability, upserts the
  reports row, and drives the TransactionPoster to emit one transaction per
  fund category. SubmitReport is the sibling entry point triggered by
  manual report submission; it posts the same set plus the local income and
  expense flows.

STATE MACHINE:
  abierto (no report row, or not closed)
    -> balanceado  close with puede_cerrar
    -> deficit     force-close while in deficit
    -> pendiente   force-close in any other unbalanced state
  Terminal per period unless the report is deleted.

IDEMPOTENCE:
  Closing or resubmitting the same period twice must not double-post.
  Before posting, every prior transaction with
  (report_id, created_by = "system") is reversed through the poster's
  delete path, inside the same storage transaction as the re-post. Either
  the whole swap commits or nothing does.

ALL-OR-NOTHING:
  Any posting failure aborts the enclosing transaction; the reports row and
  every fund balance stay exactly as they were before the attempt.

SEE ALSO:
  - calculator.go: The view this consumes
  - poster.go: postInTx / deleteInTx used inside the closing transaction
*/
package treasury

import (
	"context"
	"fmt"
)

// CloseResult is returned by ClosePeriod and SubmitReport after commit.
type CloseResult struct {
	ReportID int64       `json:"report_id"`
	Closed   bool        `json:"closed"`
	Forced   bool        `json:"forced"`
	View     *LedgerView `json:"ledger"`
}

// PeriodCloser drives the close and submit flows.
type PeriodCloser struct {
	store  Store
	calc   *Calculator
	poster *TransactionPoster
	clock  Clock
}

func NewPeriodCloser(store Store, calc *Calculator, poster *TransactionPoster) *PeriodCloser {
	return &PeriodCloser{store: store, calc: calc, poster: poster}
}

// WithClock returns a closer using a fixed clock, for tests.
func (c *PeriodCloser) WithClock(clock Clock) *PeriodCloser {
	return &PeriodCloser{store: c.store, calc: c.calc, poster: c.poster.WithClock(clock), clock: clock}
}

// =============================================================================
// CLOSE PERIOD
// =============================================================================

// ClosePeriod closes one church-month. Without force, an unclosable period
// is rejected with the current status message and remediation suggestions,
// and no writes occur.
func (c *PeriodCloser) ClosePeriod(ctx context.Context, p Period, force bool, actor Actor) (*CloseResult, error) {
	if !actor.CanActOn(p.ChurchID) {
		return nil, ErrUnauthorized
	}

	view, err := c.calc.BuildMonthlyLedger(ctx, p)
	if err != nil {
		return nil, err
	}
	if !force && !view.Balance.PuedeCerrar {
		return nil, &PeriodNotClosableError{
			Period:      p,
			Status:      view.Balance.Status,
			Message:     view.Balance.Mensaje,
			Suggestions: view.Balance.Sugerencias,
		}
	}

	now := c.clock.Now()
	var reportID int64
	err = c.store.WithTx(ctx, func(tx TxStore) error {
		report := c.reportFromView(view)
		report.Estado = ReportProcesado
		report.ClosedAt = &now
		report.ClosedBy = actor.Email
		report.ProcessedBy = actor.Email
		report.ProcessedAt = &now

		var err error
		reportID, err = tx.UpsertReport(ctx, report)
		if err != nil {
			return err
		}
		if err := c.reverseSystemTransactions(ctx, tx, reportID); err != nil {
			return err
		}
		return c.postRemittances(ctx, tx, view, reportID)
	})
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees balances after the postings.
	after, err := c.calc.BuildMonthlyLedger(ctx, p)
	if err != nil {
		return nil, err
	}
	return &CloseResult{
		ReportID: reportID,
		Closed:   true,
		Forced:   force && view.Balance.Status != StatusBalanceado,
		View:     after,
	}, nil
}

// =============================================================================
// SUBMIT REPORT (alternate entry point)
// =============================================================================

// SubmitReport creates or updates the report for a period outside the
// formal close, regenerating its auto-transactions: the remittance set
// plus an income posting into the church's local fund and expense postings
// out of it. Prior system transactions for the report are reversed first.
func (c *PeriodCloser) SubmitReport(ctx context.Context, p Period, actor Actor) (*CloseResult, error) {
	if !actor.CanActOn(p.ChurchID) {
		return nil, ErrUnauthorized
	}

	view, err := c.calc.BuildMonthlyLedger(ctx, p)
	if err != nil {
		return nil, err
	}
	church, err := c.store.GetChurch(ctx, p.ChurchID)
	if err != nil {
		return nil, err
	}
	if church == nil {
		return nil, ErrChurchNotFound
	}

	now := c.clock.Now()
	var reportID int64
	err = c.store.WithTx(ctx, func(tx TxStore) error {
		report := c.reportFromView(view)
		report.Estado = ReportPendiente
		report.SubmittedBy = actor.Email
		report.SubmittedAt = &now
		if existing := view.Report; existing != nil {
			// Resubmission keeps the close metadata if the period was
			// already processed.
			report.Estado = existing.Estado
			report.ClosedAt = existing.ClosedAt
			report.ClosedBy = existing.ClosedBy
		}

		var err error
		reportID, err = tx.UpsertReport(ctx, report)
		if err != nil {
			return err
		}
		if err := c.reverseSystemTransactions(ctx, tx, reportID); err != nil {
			return err
		}
		if err := c.postRemittances(ctx, tx, view, reportID); err != nil {
			return err
		}
		return c.postLocalFlows(ctx, tx, view, reportID, church)
	})
	if err != nil {
		return nil, err
	}

	after, err := c.calc.BuildMonthlyLedger(ctx, p)
	if err != nil {
		return nil, err
	}
	return &CloseResult{ReportID: reportID, View: after}, nil
}

// =============================================================================
// POSTING SETS
// =============================================================================

// reverseSystemTransactions deletes and reverses every prior
// system-generated posting for the report. This is what makes re-closing
// idempotent.
func (c *PeriodCloser) reverseSystemTransactions(ctx context.Context, tx TxStore, reportID int64) error {
	prior, err := tx.SystemTransactions(ctx, reportID)
	if err != nil {
		return err
	}
	for _, t := range prior {
		if err := c.poster.deleteInTx(ctx, tx, t.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// postRemittances posts the national 10% and one credit per fully remitted
// bucket with a nonzero total. Shared by close and submit.
func (c *PeriodCloser) postRemittances(ctx context.Context, tx TxStore, view *LedgerView, reportID int64) error {
	p := view.Period

	if levy := view.Distribucion.FondoNacionalBase; levy > 0 {
		national, err := tx.GetOrCreateFund(ctx, NationalFundName, FundNacional,
			"Fondo nacional: 10% de la base congregacional y aportes designados")
		if err != nil {
			return err
		}
		if _, err := c.poster.postInTx(ctx, tx, Posting{
			FundID:   national.ID,
			AmountIn: levy,
			Concept:  fmt.Sprintf("Fondo Nacional 10%% - Informe %d/%d", p.Month, p.Year),
			ChurchID: &p.ChurchID,
			ReportID: &reportID,
			Actor:    SystemActor,
			System:   true,
		}); err != nil {
			return err
		}
	}

	for _, bucket := range view.RemittedNonZero(c.calc.RemittedBuckets()) {
		amount := view.Entradas.Designados[bucket]
		bf := FundFor(bucket)
		fund, err := tx.GetOrCreateFund(ctx, bf.Name, bf.Type, "")
		if err != nil {
			return err
		}
		if _, err := c.poster.postInTx(ctx, tx, Posting{
			FundID:   fund.ID,
			AmountIn: amount,
			Concept:  fmt.Sprintf("Aporte %s - Informe %d/%d", bf.Name, p.Month, p.Year),
			ChurchID: &p.ChurchID,
			ReportID: &reportID,
			Actor:    SystemActor,
			System:   true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// postLocalFlows posts the submit-only set: total income into the church's
// local fund, then pastoral honoraria and operating expenses out of it.
// System postings, so a transiently negative local fund is tolerated.
func (c *PeriodCloser) postLocalFlows(ctx context.Context, tx TxStore, view *LedgerView, reportID int64, church *Church) error {
	p := view.Period
	local, err := tx.GetOrCreateFund(ctx, fmt.Sprintf("Fondo Local %s", church.Name), FundOtro,
		fmt.Sprintf("Fondo operativo de %s", church.Name))
	if err != nil {
		return err
	}

	if total := view.Entradas.Total; total > 0 {
		if _, err := c.poster.postInTx(ctx, tx, Posting{
			FundID:   local.ID,
			AmountIn: total,
			Concept:  fmt.Sprintf("Entradas del mes - Informe %d/%d", p.Month, p.Year),
			ChurchID: &p.ChurchID,
			ReportID: &reportID,
			Actor:    SystemActor,
			System:   true,
		}); err != nil {
			return err
		}
	}
	if honorarios := view.Gastos.HonorariosRegistrado; honorarios > 0 {
		if _, err := c.poster.postInTx(ctx, tx, Posting{
			FundID:    local.ID,
			AmountOut: honorarios,
			Concept:   fmt.Sprintf("Honorarios pastorales - Informe %d/%d", p.Month, p.Year),
			ChurchID:  &p.ChurchID,
			ReportID:  &reportID,
			Actor:     SystemActor,
			System:    true,
		}); err != nil {
			return err
		}
	}
	if gastos := view.Gastos.Operativos; gastos > 0 {
		if _, err := c.poster.postInTx(ctx, tx, Posting{
			FundID:    local.ID,
			AmountOut: gastos,
			Concept:   fmt.Sprintf("Gastos operativos - Informe %d/%d", p.Month, p.Year),
			ChurchID:  &p.ChurchID,
			ReportID:  &reportID,
			Actor:     SystemActor,
			System:    true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// reportFromView copies the computed totals into the reports row.
func (c *PeriodCloser) reportFromView(view *LedgerView) *Report {
	designados := make(map[Bucket]int64, len(view.Entradas.Designados))
	for b, v := range view.Entradas.Designados {
		designados[b] = v
	}
	return &Report{
		ChurchID:           view.Period.ChurchID,
		Month:              view.Period.Month,
		Year:               view.Period.Year,
		Diezmos:            view.Entradas.Diezmos,
		Ofrendas:           view.Entradas.Ofrendas,
		Otros:              view.Entradas.Otros + view.Entradas.Anexos,
		Designados:         designados,
		TotalEntradas:      view.Entradas.Total,
		FondoNacional:      view.Distribucion.FondoNacionalTotal,
		GastosOperativos:   view.Gastos.Operativos,
		HonorariosPastoral: view.Gastos.HonorariosRegistrado,
		BalanceStatus:      view.Balance.Status,
		BalanceDelta:       view.Balance.SaldoCalculado,
	}
}
