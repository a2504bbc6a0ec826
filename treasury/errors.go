/*
errors.go - Centralized error types for the treasury core

PURPOSE:
  All error types in one place. Sentinel errors for errors.Is checks,
  structured errors where the caller needs amounts or suggestions.

ERROR CATEGORIES:
  1. Validation errors - bad input shape, rejected before any write
  2. Business-rule conflicts - insufficient balance, unclosable period
  3. Not-found errors - missing fund/report/transaction/church
  4. Storage errors - propagated as-is after rollback

SEE ALSO:
  - poster.go: InsufficientFundsError, amount XOR guard
  - closer.go: PeriodNotClosableError with remediation suggestions
*/
package treasury

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAmountXOR is returned when a posting sets both or neither of
	// amount_in/amount_out. This is a caller bug, never silently coerced.
	ErrAmountXOR = errors.New("exactly one of amount_in and amount_out must be positive")

	// ErrInsufficientFunds is returned when a user-initiated posting or a
	// reversal would drive a fund balance below zero.
	ErrInsufficientFunds = errors.New("insufficient fund balance")

	// ErrPeriodNotClosable is returned when closing is attempted on an
	// unbalanced period without force.
	ErrPeriodNotClosable = errors.New("period cannot be closed")

	// ErrInvalidPeriod is returned for a malformed church/month/year key.
	ErrInvalidPeriod = errors.New("invalid period: church id and month 1-12 required")

	// ErrUnauthorized is returned when a church actor targets another church.
	ErrUnauthorized = errors.New("actor may not act on this church")

	ErrFundNotFound        = errors.New("fund not found")
	ErrChurchNotFound      = errors.New("church not found")
	ErrReportNotFound      = errors.New("report not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError names the fund and the balances involved so the
// caller can surface exactly what is wrong.
type InsufficientFundsError struct {
	FundID    int64
	FundName  string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance in fund %q: available Gs. %d, requested Gs. %d",
		e.FundName, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// PeriodNotClosableError carries the classification that blocked the close
// and the remediation suggestions derived from it.
type PeriodNotClosableError struct {
	Period      Period
	Status      BalanceStatus
	Message     string
	Suggestions []string
}

func (e *PeriodNotClosableError) Error() string {
	return fmt.Sprintf("period %d/%d for church %d cannot be closed: %s",
		e.Period.Month, e.Period.Year, e.Period.ChurchID, e.Message)
}

func (e *PeriodNotClosableError) Unwrap() error { return ErrPeriodNotClosable }

// ValidationError reports a bad input field before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// business-rule conflict, i.e. the caller can fix it.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrAmountXOR) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrPeriodNotClosable) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.As(err, &ve)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFundNotFound) ||
		errors.Is(err, ErrChurchNotFound) ||
		errors.Is(err, ErrReportNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
