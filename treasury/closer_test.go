package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipupy/tesoreria/store/sqlite"
	"github.com/ipupy/tesoreria/treasury"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var adminActor = treasury.Actor{Role: treasury.RoleAdmin, Email: "tesorero@ipupy.org.py"}

func newCloser(store *sqlite.Store, salaryCap int64) *treasury.PeriodCloser {
	calc := treasury.NewCalculator(store, nil, salaryCap)
	poster := treasury.NewTransactionPoster(store)
	return treasury.NewPeriodCloser(store, calc, poster)
}

// balancedJune seeds a church-month that classifies as balanceado:
// diezmos 900,000 + ofrendas 100,000, honoraria 900,000 registered.
func balancedJune(t *testing.T, store *sqlite.Store) int64 {
	t.Helper()
	churchID := createChurch(t, store, "IPU Asunción")
	addWorship(t, store, churchID, june(1), map[treasury.Bucket]int64{
		treasury.BucketDiezmo:  900_000,
		treasury.BucketOfrenda: 100_000,
	})
	addExpense(t, store, churchID, june(30), 900_000, true)
	return churchID
}

func systemTxCount(t *testing.T, store *sqlite.Store, reportID int64) int {
	t.Helper()
	txs, err := store.ListTransactions(context.Background(),
		treasury.TransactionFilter{ReportID: &reportID})
	require.NoError(t, err)
	count := 0
	for _, tx := range txs {
		if tx.CreatedBy == treasury.SystemActor {
			count++
		}
	}
	return count
}

// =============================================================================
// CLOSE REJECTION
// =============================================================================

func TestCloser_UnbalancedPeriod_RejectedWithoutWrites(t *testing.T) {
	// GIVEN: A month pending its pastoral invoice
	// WHEN: Closing without force
	// THEN: Rejected with a suggestion; no report row and no transactions

	store := newTestStore(t)
	churchID := createChurch(t, store, "IPU Asunción")
	addWorship(t, store, churchID, june(1), map[treasury.Bucket]int64{
		treasury.BucketDiezmo: 1_000_000,
	})
	closer := newCloser(store, 0)
	ctx := context.Background()

	_, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)

	var notClosable *treasury.PeriodNotClosableError
	require.ErrorAs(t, err, &notClosable)
	assert.Equal(t, treasury.StatusPendienteFactura, notClosable.Status)
	assert.NotEmpty(t, notClosable.Suggestions)
	assert.ErrorIs(t, err, treasury.ErrPeriodNotClosable)

	report, err := store.GetReport(ctx, junePeriod(churchID))
	require.NoError(t, err)
	assert.Nil(t, report)

	txs, err := store.ListTransactions(ctx, treasury.TransactionFilter{ChurchID: &churchID})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCloser_ChurchActor_OtherChurch_Unauthorized(t *testing.T) {
	store := newTestStore(t)
	churchID := balancedJune(t, store)
	closer := newCloser(store, 0)

	intruder := treasury.Actor{Role: treasury.RoleChurch, ChurchID: churchID + 1, Email: "otra@ipupy.org.py"}
	_, err := closer.ClosePeriod(context.Background(), junePeriod(churchID), false, intruder)

	assert.ErrorIs(t, err, treasury.ErrUnauthorized)
}

// =============================================================================
// SUCCESSFUL CLOSE
// =============================================================================

func TestCloser_BalancedClose_PostsNationalLevy(t *testing.T) {
	// GIVEN: A balanced month with a 1,000,000 congregational base
	// WHEN: Closing it
	// THEN: The report is marked processed and the national fund holds
	//       the 100,000 levy, posted by the system

	store := newTestStore(t)
	churchID := balancedJune(t, store)
	closer := newCloser(store, 0)
	ctx := context.Background()

	result, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.False(t, result.Forced)

	report, err := store.GetReportByID(ctx, result.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, treasury.ReportProcesado, report.Estado)
	assert.Equal(t, adminActor.Email, report.ClosedBy)
	assert.NotNil(t, report.ClosedAt)
	assert.Equal(t, treasury.StatusBalanceado, report.BalanceStatus)
	assert.Equal(t, int64(1_000_000), report.TotalEntradas)
	assert.Equal(t, int64(100_000), report.FondoNacional)

	national, err := store.GetFundByName(ctx, treasury.NationalFundName)
	require.NoError(t, err)
	require.NotNil(t, national)
	assert.Equal(t, int64(100_000), national.CurrentBalance)

	assert.Equal(t, 1, systemTxCount(t, store, result.ReportID))
}

func TestCloser_RemittedBuckets_OneTransactionPerFund(t *testing.T) {
	// GIVEN: A month with misiones and lazos_amor contributions and a
	//        matching honoraria invoice
	// WHEN: Closing it
	// THEN: Each remitted bucket's fund is credited 100%, plus the levy

	store := newTestStore(t)
	churchID := createChurch(t, store, "IPU Asunción")
	addWorship(t, store, churchID, june(1), map[treasury.Bucket]int64{
		treasury.BucketDiezmo:    1_000_000,
		treasury.BucketMisiones:  50_000,
		treasury.BucketLazosAmor: 20_000,
	})
	// Residual salary: 1,070,000 - 170,000 = 900,000.
	addExpense(t, store, churchID, june(30), 900_000, true)
	closer := newCloser(store, 0)
	ctx := context.Background()

	result, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)
	require.NoError(t, err)

	national, err := store.GetFundByName(ctx, treasury.NationalFundName)
	require.NoError(t, err)
	require.NotNil(t, national)
	assert.Equal(t, int64(100_000), national.CurrentBalance)

	misiones, err := store.GetFundByName(ctx, "Misiones")
	require.NoError(t, err)
	require.NotNil(t, misiones)
	assert.Equal(t, int64(50_000), misiones.CurrentBalance)
	assert.Equal(t, treasury.FundMisionero, misiones.Type)

	lazos, err := store.GetFundByName(ctx, "Lazos de Amor")
	require.NoError(t, err)
	require.NotNil(t, lazos)
	assert.Equal(t, int64(20_000), lazos.CurrentBalance)

	// Levy + two remitted buckets.
	assert.Equal(t, 3, systemTxCount(t, store, result.ReportID))
}

func TestCloser_ForceClose_Deficit(t *testing.T) {
	// GIVEN: A month in deficit
	// WHEN: Closing with force
	// THEN: The close proceeds and the deficit is recorded on the report

	store := newTestStore(t)
	churchID := createChurch(t, store, "IPU Asunción")
	addWorship(t, store, churchID, june(1), map[treasury.Bucket]int64{
		treasury.BucketDiezmo: 1_000_000,
	})
	addExpense(t, store, churchID, june(15), 1_000_000, false)
	closer := newCloser(store, 0)
	ctx := context.Background()

	result, err := closer.ClosePeriod(ctx, junePeriod(churchID), true, adminActor)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.True(t, result.Forced)

	report, err := store.GetReportByID(ctx, result.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, treasury.StatusDeficit, report.BalanceStatus)
	assert.Equal(t, int64(-100_000), report.BalanceDelta)
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestCloser_DoubleClose_DoesNotDoublePost(t *testing.T) {
	// GIVEN: A balanced month already closed
	// WHEN: Closing it again
	// THEN: Same report id, same fund balances, same transaction set

	store := newTestStore(t)
	churchID := balancedJune(t, store)
	closer := newCloser(store, 0)
	ctx := context.Background()

	first, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)
	require.NoError(t, err)
	second, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)
	require.NoError(t, err)

	assert.Equal(t, first.ReportID, second.ReportID)

	national, err := store.GetFundByName(ctx, treasury.NationalFundName)
	require.NoError(t, err)
	require.NotNil(t, national)
	assert.Equal(t, int64(100_000), national.CurrentBalance)
	assert.Equal(t, 1, systemTxCount(t, store, first.ReportID))
}

func TestCloser_ReCloseAfterCorrection_RebuildsLedger(t *testing.T) {
	// GIVEN: A closed month whose worship data then gains a new record
	// WHEN: Re-closing
	// THEN: The old system postings are reversed and the new totals stand

	store := newTestStore(t)
	churchID := createChurch(t, store, "IPU Asunción")
	addWorship(t, store, churchID, june(1), map[treasury.Bucket]int64{
		treasury.BucketDiezmo: 1_000_000,
	})
	addExpense(t, store, churchID, june(30), 900_000, true)
	closer := newCloser(store, 0)
	ctx := context.Background()

	first, err := closer.ClosePeriod(ctx, junePeriod(churchID), false, adminActor)
	require.NoError(t, err)

	// A late worship record changes the base; the month is now unbalanced,
	// so the re-close needs force.
	addWorship(t, store, churchID, june(29), map[treasury.Bucket]int64{
		treasury.BucketDiezmo: 500_000,
	})
	second, err := closer.ClosePeriod(ctx, junePeriod(churchID), true, adminActor)
	require.NoError(t, err)
	assert.Equal(t, first.ReportID, second.ReportID)

	// Levy is now 10% of 1,500,000, not 100,000 + 150,000.
	national, err := store.GetFundByName(ctx, treasury.NationalFundName)
	require.NoError(t, err)
	require.NotNil(t, national)
	assert.Equal(t, int64(150_000), national.CurrentBalance)
	assert.Equal(t, 1, systemTxCount(t, store, first.ReportID))

	report, err := store.GetReportByID(ctx, first.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, int64(1_500_000), report.TotalEntradas)
	assert.Equal(t, int64(150_000), report.FondoNacional)
}

// =============================================================================
// REPORT SUBMISSION
// =============================================================================

func TestCloser_SubmitReport_PostsLocalFlows(t *testing.T) {
	// GIVEN: A balanced month
	// WHEN: Submitting the report
	// THEN: The church's local fund receives the income and is debited
	//       the honoraria, alongside the national remittances

	store := newTestStore(t)
	churchID := balancedJune(t, store)
	closer := newCloser(store, 0)
	ctx := context.Background()

	result, err := closer.SubmitReport(ctx, junePeriod(churchID), adminActor)
	require.NoError(t, err)

	report, err := store.GetReportByID(ctx, result.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, treasury.ReportPendiente, report.Estado)
	assert.Equal(t, adminActor.Email, report.SubmittedBy)
	assert.NotNil(t, report.SubmittedAt)

	local, err := store.GetFundByName(ctx, "Fondo Local IPU Asunción")
	require.NoError(t, err)
	require.NotNil(t, local)
	// Income 1,000,000 minus honoraria 900,000.
	assert.Equal(t, int64(100_000), local.CurrentBalance)

	national, err := store.GetFundByName(ctx, treasury.NationalFundName)
	require.NoError(t, err)
	require.NotNil(t, national)
	assert.Equal(t, int64(100_000), national.CurrentBalance)
}

func TestCloser_Resubmit_Idempotent(t *testing.T) {
	// GIVEN: A submitted report
	// WHEN: Submitting the same period again
	// THEN: Balances and transaction set are unchanged

	store := newTestStore(t)
	churchID := balancedJune(t, store)
	closer := newCloser(store, 0)
	ctx := context.Background()

	first, err := closer.SubmitReport(ctx, junePeriod(churchID), adminActor)
	require.NoError(t, err)
	second, err := closer.SubmitReport(ctx, junePeriod(churchID), adminActor)
	require.NoError(t, err)
	assert.Equal(t, first.ReportID, second.ReportID)

	local, err := store.GetFundByName(ctx, "Fondo Local IPU Asunción")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, int64(100_000), local.CurrentBalance)

	// Levy + local income + honoraria.
	assert.Equal(t, 3, systemTxCount(t, store, first.ReportID))
}

func TestCloser_Submit_MissingChurch(t *testing.T) {
	store := newTestStore(t)
	closer := newCloser(store, 0)

	_, err := closer.SubmitReport(context.Background(),
		treasury.Period{ChurchID: 42, Month: 6, Year: 2025}, adminActor)

	assert.ErrorIs(t, err, treasury.ErrChurchNotFound)
}
