package vault

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrReentrancyDetected is returned when a guarded operation is re-entered
// while already active.
var ErrReentrancyDetected = errors.New("reentrant call detected")

// CapacityExceededError reports a deposit that would push the custody pool
// past the configured bank cap. No state is mutated.
type CapacityExceededError struct {
	NewTotal decimal.Decimal
	BankCap  decimal.Decimal
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("deposit exceeds bank capacity: new total %s > cap %s", e.NewTotal, e.BankCap)
}

// LimitExceededError reports a withdrawal above the per-operation ceiling.
type LimitExceededError struct {
	Requested decimal.Decimal
	Limit     decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("withdrawal %s exceeds limit %s", e.Requested, e.Limit)
}

// InsufficientFundsError reports a withdrawal above the caller's balance.
type InsufficientFundsError struct {
	Account   string
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %s has %s, requested %s", e.Account, e.Balance, e.Requested)
}

// TransferFailedError reports that the outbound value transfer failed after
// ledger effects were applied; the ledger has already undone those effects
// by the time the caller sees this error.
type TransferFailedError struct {
	Account string
	Reason  error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("outbound transfer to %s failed: %v", e.Account, e.Reason)
}

func (e *TransferFailedError) Unwrap() error { return e.Reason }

// NotAuthorizedError reports an administrative call from a non-owner.
type NotAuthorizedError struct {
	Caller string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("caller %s is not the owner", e.Caller)
}
