/*
poster.go - Transaction Poster, the only writer of fund balances

PURPOSE:
  Posts a single transaction against one fund: insert the row, move the
  balance, append the audit movement - all inside one storage transaction.
  Deleting a transaction is the mirror operation.

CRITICAL INVARIANTS:
  1. XOR amounts: exactly one of amount_in/amount_out is positive.
  2. The fund's current_balance and the transaction's recorded balance
     snapshot are written in the same atomic unit; they cannot diverge.
  3. One movement row per posting, one per reversal.

NEGATIVE BALANCE POLICY:
  User-initiated postings that would drive a fund negative are rejected
  with InsufficientFundsError. System-generated postings (report
  auto-transactions) log a warning and proceed: treasury data can
  legitimately go negative pending correction, and blocking an accepted
  report submission is worse. The exception is scoped to the system call
  path only.

SEE ALSO:
  - store.go: FundForUpdate locking contract
  - closer.go: Drives the poster once per fund category at close time
*/
package treasury

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// POSTING REQUEST
// =============================================================================

// Posting describes one transaction to post. System postings relax the
// negative-balance guard; see the package comment.
type Posting struct {
	FundID         int64
	AmountIn       int64
	AmountOut      int64
	Concept        string
	Provider       string
	DocumentNumber string
	ChurchID       *int64
	ReportID       *int64
	Date           time.Time // zero means the poster's clock
	Actor          string
	System         bool
}

// =============================================================================
// TRANSACTION POSTER
// =============================================================================

type TransactionPoster struct {
	store Store
	clock Clock
}

func NewTransactionPoster(store Store) *TransactionPoster {
	return &TransactionPoster{store: store}
}

// WithClock returns a poster using a fixed clock, for tests.
func (p *TransactionPoster) WithClock(c Clock) *TransactionPoster {
	return &TransactionPoster{store: p.store, clock: c}
}

// Post validates and posts one transaction atomically, returning the
// inserted row including its balance snapshot.
func (p *TransactionPoster) Post(ctx context.Context, req Posting) (*Transaction, error) {
	if err := validatePosting(req); err != nil {
		return nil, err
	}

	var posted *Transaction
	err := p.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		posted, err = p.postInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// postInTx is the shared core used by Post and by the closer, which posts
// several transactions inside one enclosing storage transaction.
func (p *TransactionPoster) postInTx(ctx context.Context, tx TxStore, req Posting) (*Transaction, error) {
	fund, err := tx.FundForUpdate(ctx, req.FundID)
	if err != nil {
		return nil, err
	}
	prev := fund.CurrentBalance

	movement := req.AmountIn - req.AmountOut
	newBalance := prev + movement

	if newBalance < 0 {
		if !req.System {
			return nil, &InsufficientFundsError{
				FundID:    req.FundID,
				FundName:  fund.Name,
				Available: prev,
				Requested: req.AmountOut,
			}
		}
		log.Printf("treasury: fund %d goes negative on system posting %q (balance Gs. %d)",
			req.FundID, req.Concept, newBalance)
	}

	date := req.Date
	if date.IsZero() {
		date = p.clock.Now()
	}

	t := &Transaction{
		Date:           date,
		ChurchID:       req.ChurchID,
		ReportID:       req.ReportID,
		FundID:         req.FundID,
		Concept:        req.Concept,
		Provider:       req.Provider,
		DocumentNumber: req.DocumentNumber,
		AmountIn:       req.AmountIn,
		AmountOut:      req.AmountOut,
		Balance:        newBalance,
		CreatedBy:      req.Actor,
	}
	id, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	if err := tx.SetFundBalance(ctx, req.FundID, newBalance); err != nil {
		return nil, err
	}

	if err := tx.AppendMovement(ctx, FundMovement{
		FundID:          req.FundID,
		TransactionID:   &id,
		PreviousBalance: prev,
		Movement:        movement,
		NewBalance:      newBalance,
	}); err != nil {
		return nil, err
	}

	return t, nil
}

// Delete reverses and removes a transaction: the inverse movement is
// applied to the fund, the row is deleted, and a reversal movement row
// (transaction_id NULL) is appended. Rejected if the reversal would push
// the fund negative.
func (p *TransactionPoster) Delete(ctx context.Context, id int64) error {
	return p.store.WithTx(ctx, func(tx TxStore) error {
		return p.deleteInTx(ctx, tx, id, false)
	})
}

// deleteInTx removes one transaction inside an enclosing storage
// transaction. system relaxes the negative guard the same way system
// postings do - the closer must be able to reverse its own credits even
// if the fund was spent down in the meantime.
func (p *TransactionPoster) deleteInTx(ctx context.Context, tx TxStore, id int64, system bool) error {
	t, err := tx.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return err
	}

	fund, err := tx.FundForUpdate(ctx, t.FundID)
	if err != nil {
		return err
	}
	prev := fund.CurrentBalance

	reversal := -t.Movement()
	newBalance := prev + reversal
	if newBalance < 0 {
		if !system {
			return &InsufficientFundsError{
				FundID:    t.FundID,
				FundName:  fund.Name,
				Available: prev,
				Requested: t.AmountIn,
			}
		}
		log.Printf("treasury: fund %d goes negative reversing system posting %d (balance Gs. %d)",
			t.FundID, id, newBalance)
	}

	if err := tx.DeleteTransactionRow(ctx, id); err != nil {
		return err
	}
	if err := tx.SetFundBalance(ctx, t.FundID, newBalance); err != nil {
		return err
	}
	return tx.AppendMovement(ctx, FundMovement{
		FundID:          t.FundID,
		TransactionID:   nil, // reversal rows do not reference the deleted tx
		PreviousBalance: prev,
		Movement:        reversal,
		NewBalance:      newBalance,
	})
}

// =============================================================================
// VALIDATION
// =============================================================================

func validatePosting(req Posting) error {
	if req.FundID <= 0 {
		return &ValidationError{Field: "fund_id", Message: "required"}
	}
	if req.AmountIn < 0 || req.AmountOut < 0 {
		return &ValidationError{Field: "amount", Message: "amounts must not be negative"}
	}
	in, out := req.AmountIn > 0, req.AmountOut > 0
	if in == out { // both set or both zero
		return ErrAmountXOR
	}
	if req.Concept == "" {
		return &ValidationError{Field: "concept", Message: "required"}
	}
	return nil
}
