package treasury_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipupy/tesoreria/store/sqlite"
	"github.com/ipupy/tesoreria/treasury"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createFund(t *testing.T, store *sqlite.Store, name string, fundType treasury.FundType) *treasury.Fund {
	t.Helper()
	var fund *treasury.Fund
	err := store.WithTx(context.Background(), func(tx treasury.TxStore) error {
		var err error
		fund, err = tx.GetOrCreateFund(context.Background(), name, fundType, "")
		return err
	})
	require.NoError(t, err)
	return fund
}

func fundBalance(t *testing.T, store *sqlite.Store, fundID int64) int64 {
	t.Helper()
	fund, err := store.GetFund(context.Background(), fundID)
	require.NoError(t, err)
	require.NotNil(t, fund)
	return fund.CurrentBalance
}

func credit(fundID, amount int64, concept string) treasury.Posting {
	return treasury.Posting{FundID: fundID, AmountIn: amount, Concept: concept, Actor: "tesorero@ipupy.org.py"}
}

func debit(fundID, amount int64, concept string) treasury.Posting {
	return treasury.Posting{FundID: fundID, AmountOut: amount, Concept: concept, Actor: "tesorero@ipupy.org.py"}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestPoster_BothAmountsSet_Rejected(t *testing.T) {
	// GIVEN: A posting with both amount_in and amount_out positive
	// WHEN: Posting it
	// THEN: Rejected with the XOR error, nothing written

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)

	_, err := poster.Post(context.Background(), treasury.Posting{
		FundID:    fund.ID,
		AmountIn:  1000,
		AmountOut: 500,
		Concept:   "ambiguo",
	})

	assert.ErrorIs(t, err, treasury.ErrAmountXOR)
	assert.Equal(t, int64(0), fundBalance(t, store, fund.ID))
}

func TestPoster_NoAmountSet_Rejected(t *testing.T) {
	// GIVEN: A posting with both amounts zero
	// WHEN: Posting it
	// THEN: Rejected with the XOR error

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)

	_, err := poster.Post(context.Background(), treasury.Posting{
		FundID:  fund.ID,
		Concept: "vacio",
	})

	assert.ErrorIs(t, err, treasury.ErrAmountXOR)
}

func TestPoster_MissingConcept_Rejected(t *testing.T) {
	store := newTestStore(t)
	fund := createFund(t, store, "Misiones", treasury.FundMisionero)
	poster := treasury.NewTransactionPoster(store)

	_, err := poster.Post(context.Background(), treasury.Posting{FundID: fund.ID, AmountIn: 1000})

	var ve *treasury.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "concept", ve.Field)
}

// =============================================================================
// POSTING TESTS
// =============================================================================

func TestPoster_Credit_UpdatesBalanceAndSnapshot(t *testing.T) {
	// GIVEN: A fund with zero balance
	// WHEN: Posting a credit of Gs. 100,000
	// THEN: Fund balance, transaction snapshot and movement row all agree

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	posted, err := poster.Post(ctx, credit(fund.ID, 100_000, "Aporte mensual"))
	require.NoError(t, err)

	assert.Equal(t, int64(100_000), posted.Balance)
	assert.Equal(t, int64(100_000), fundBalance(t, store, fund.ID))

	movements, err := store.ListMovements(ctx, fund.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(0), movements[0].PreviousBalance)
	assert.Equal(t, int64(100_000), movements[0].Movement)
	assert.Equal(t, int64(100_000), movements[0].NewBalance)
	require.NotNil(t, movements[0].TransactionID)
	assert.Equal(t, posted.ID, *movements[0].TransactionID)
}

func TestPoster_Overdraw_RejectedWithBalances(t *testing.T) {
	// GIVEN: A fund holding Gs. 100,000
	// WHEN: A user posts an expense of Gs. 150,000
	// THEN: Rejected naming the available balance; nothing changes

	store := newTestStore(t)
	fund := createFund(t, store, "Misiones", treasury.FundMisionero)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	_, err := poster.Post(ctx, credit(fund.ID, 100_000, "Aporte"))
	require.NoError(t, err)

	_, err = poster.Post(ctx, debit(fund.ID, 150_000, "Compra de materiales"))

	var insufficient *treasury.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(100_000), insufficient.Available)
	assert.Equal(t, int64(150_000), insufficient.Requested)
	assert.Equal(t, "Misiones", insufficient.FundName)
	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)

	// The rejected posting left no trace.
	assert.Equal(t, int64(100_000), fundBalance(t, store, fund.ID))
	txs, err := store.ListTransactions(ctx, treasury.TransactionFilter{FundID: &fund.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestPoster_NegativeGuard_ReturnsWhileTransactionOpen(t *testing.T) {
	// GIVEN: A store whose pool is capped at one connection, held by the
	//        posting transaction for its whole duration
	// WHEN: A user overdraws a fund, then deletes a credit already spent
	// THEN: Both rejections return with the fund name resolved inside the
	//       transaction; neither waits on a second connection

	store := newTestStore(t)
	fund := createFund(t, store, "Misiones", treasury.FundMisionero)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	in, err := poster.Post(ctx, credit(fund.ID, 100_000, "Aporte"))
	require.NoError(t, err)

	rejected := func(op func() error) error {
		t.Helper()
		done := make(chan error, 1)
		go func() { done <- op() }()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("rejection did not return")
			return nil
		}
	}

	err = rejected(func() error {
		_, err := poster.Post(ctx, debit(fund.ID, 150_000, "Compra de materiales"))
		return err
	})
	var insufficient *treasury.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Misiones", insufficient.FundName)

	_, err = poster.Post(ctx, debit(fund.ID, 80_000, "Gasto"))
	require.NoError(t, err)

	err = rejected(func() error { return poster.Delete(ctx, in.ID) })
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Misiones", insufficient.FundName)
}

func TestPoster_SystemPosting_MayGoNegative(t *testing.T) {
	// GIVEN: A fund with zero balance
	// WHEN: A system posting debits it
	// THEN: The posting proceeds and the balance goes negative

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Local Asunción", treasury.FundOtro)
	poster := treasury.NewTransactionPoster(store)

	_, err := poster.Post(context.Background(), treasury.Posting{
		FundID:    fund.ID,
		AmountOut: 50_000,
		Concept:   "Gastos operativos",
		Actor:     treasury.SystemActor,
		System:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(-50_000), fundBalance(t, store, fund.ID))
}

// =============================================================================
// DELETION / REVERSAL TESTS
// =============================================================================

func TestPoster_Delete_ReversesBalance(t *testing.T) {
	// GIVEN: A credit of 100,000 and a debit of 30,000
	// WHEN: Deleting the debit
	// THEN: Balance returns to 100,000, the row is gone, a reversal
	//       movement without a transaction reference is appended

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	_, err := poster.Post(ctx, credit(fund.ID, 100_000, "Aporte"))
	require.NoError(t, err)
	out, err := poster.Post(ctx, debit(fund.ID, 30_000, "Gasto"))
	require.NoError(t, err)

	require.NoError(t, poster.Delete(ctx, out.ID))

	assert.Equal(t, int64(100_000), fundBalance(t, store, fund.ID))

	gone, err := store.GetTransaction(ctx, out.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	movements, err := store.ListMovements(ctx, fund.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	reversal := movements[2]
	assert.Nil(t, reversal.TransactionID)
	assert.Equal(t, int64(30_000), reversal.Movement)
}

func TestPoster_Delete_RejectedWhenFundWouldGoNegative(t *testing.T) {
	// GIVEN: A credit of 100,000 already spent down to 20,000
	// WHEN: Deleting the credit
	// THEN: Rejected; reversing it would leave the fund at -80,000

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	in, err := poster.Post(ctx, credit(fund.ID, 100_000, "Aporte"))
	require.NoError(t, err)
	_, err = poster.Post(ctx, debit(fund.ID, 80_000, "Gasto"))
	require.NoError(t, err)

	err = poster.Delete(ctx, in.ID)

	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)
	assert.Equal(t, int64(20_000), fundBalance(t, store, fund.ID))
}

func TestPoster_Delete_MissingTransaction(t *testing.T) {
	store := newTestStore(t)
	poster := treasury.NewTransactionPoster(store)

	err := poster.Delete(context.Background(), 9999)

	assert.ErrorIs(t, err, treasury.ErrTransactionNotFound)
}

// =============================================================================
// CONSISTENCY INVARIANT
// =============================================================================

func TestPoster_BalanceAlwaysEqualsSumOfMovements(t *testing.T) {
	// GIVEN: An arbitrary sequence of postings and deletions
	// WHEN: Checked after every step
	// THEN: current_balance equals the sum of all movement deltas

	store := newTestStore(t)
	fund := createFund(t, store, "Fondo Nacional", treasury.FundNacional)
	poster := treasury.NewTransactionPoster(store)
	ctx := context.Background()

	checkInvariant := func() {
		t.Helper()
		movements, err := store.ListMovements(ctx, fund.ID, 0, 0)
		require.NoError(t, err)
		var total int64
		for _, m := range movements {
			total += m.Movement
		}
		assert.Equal(t, fundBalance(t, store, fund.ID), total)
	}

	var ids []int64
	steps := []treasury.Posting{
		credit(fund.ID, 500_000, "Aporte 1"),
		debit(fund.ID, 120_000, "Gasto 1"),
		credit(fund.ID, 75_000, "Aporte 2"),
		debit(fund.ID, 300_000, "Gasto 2"),
		credit(fund.ID, 1_000, "Aporte 3"),
	}
	for _, p := range steps {
		posted, err := poster.Post(ctx, p)
		require.NoError(t, err)
		ids = append(ids, posted.ID)
		checkInvariant()
	}

	// Delete the second expense, then the last credit.
	require.NoError(t, poster.Delete(ctx, ids[3]))
	checkInvariant()
	require.NoError(t, poster.Delete(ctx, ids[4]))
	checkInvariant()
}
