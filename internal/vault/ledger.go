package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Config is the immutable ledger configuration. Both values are in minor
// units and never change for the lifetime of the ledger.
type Config struct {
	WithdrawLimit decimal.Decimal
	BankCap       decimal.Decimal
}

// Account is a custodied account: its current balance plus its recorded
// transaction history. History keys are drawn from the global deposit and
// withdrawal counters, not a per-account sequence, so one account's history
// has gaps. Inherited numbering scheme, kept deliberately.
type Account struct {
	Balance decimal.Decimal
	History map[uint64]decimal.Decimal
}

// Transaction is one recorded ledger movement, as persisted by a Journal.
type Transaction struct {
	Seq     uint64
	Kind    string // "deposit" or "withdrawal"
	Account string
	Amount  decimal.Decimal
}

// Journal persists completed ledger transactions. Implementations must be
// safe for use from the ledger's serialized operation path.
type Journal interface {
	Record(ctx context.Context, tx Transaction) error
}

// EventSink receives ledger notifications. Notifications are observability
// only; implementations must not call back into the ledger.
type EventSink interface {
	DepositMade(ctx context.Context, account string, amount, newBalance decimal.Decimal)
	WithdrawalMade(ctx context.Context, account string, amount, newBalance decimal.Decimal)
}

// Ledger custodies a fungible value unit on behalf of many accounts,
// enforcing a global capacity cap and a per-operation withdrawal ceiling.
//
// All mutating operations serialize behind one mutex; the sum of account
// balances equals the pool total at every point where the mutex is free.
type Ledger struct {
	cfg Config

	mu    sync.RWMutex
	guard reentrancyGuard

	accounts        map[string]*Account
	totalBalance    decimal.Decimal
	depositCount    uint64
	withdrawalCount uint64

	// reserved is the amount of the in-flight withdrawal, nonzero only
	// while the latch is held across a payout. The capacity check counts
	// it, so a failed transfer's undo can never push the pool past the
	// cap. Invariant: totalBalance + reserved <= BankCap after any
	// completed deposit.
	reserved decimal.Decimal

	gateway TransferGateway
	journal Journal
	events  EventSink
	log     *slog.Logger
}

// Option configures optional ledger collaborators.
type Option func(*Ledger)

// WithJournal attaches a persistence journal.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithEventSink attaches an event sink.
func WithEventSink(s EventSink) Option {
	return func(l *Ledger) { l.events = s }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger creates a ledger with the given immutable configuration and
// outbound transfer gateway.
func NewLedger(cfg Config, gateway TransferGateway, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:          cfg,
		accounts:     make(map[string]*Account),
		totalBalance: decimal.Zero,
		reserved:     decimal.Zero,
		gateway:      gateway,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) account(id string) *Account {
	acct, ok := l.accounts[id]
	if !ok {
		acct = &Account{
			Balance: decimal.Zero,
			History: make(map[uint64]decimal.Decimal),
		}
		l.accounts[id] = acct
	}
	return acct
}

// Deposit credits amount minor units to caller's account. A zero amount is
// permitted and still increments the deposit counter and writes a
// zero-amount history entry. The capacity check runs before any mutation:
// on CapacityExceededError the ledger is untouched.
func (l *Ledger) Deposit(ctx context.Context, caller string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative deposit amount %s", amount)
	}

	l.mu.Lock()

	// The reserved amount of an in-flight withdrawal counts against the
	// cap: if its transfer fails, the undo adds it back to the pool.
	newTotal := l.totalBalance.Add(l.reserved).Add(amount)
	if newTotal.GreaterThan(l.cfg.BankCap) {
		l.mu.Unlock()
		return &CapacityExceededError{NewTotal: newTotal, BankCap: l.cfg.BankCap}
	}

	acct := l.account(caller)
	acct.Balance = acct.Balance.Add(amount)
	l.totalBalance = l.totalBalance.Add(amount)
	l.depositCount++
	seq := l.depositCount
	acct.History[seq] = amount
	newBalance := acct.Balance

	l.mu.Unlock()

	l.record(ctx, Transaction{Seq: seq, Kind: "deposit", Account: caller, Amount: amount})
	if l.events != nil {
		l.events.DepositMade(ctx, caller, amount, newBalance)
	}
	return nil
}

// Withdraw debits amount minor units from caller's account and pays it out
// through the gateway. Checks run in order (limit, then balance) before any
// mutation. Effects are applied before the outbound transfer; if the
// transfer fails, the ledger undoes its own effects and returns
// TransferFailedError, leaving state as if the call never happened.
//
// The operation is guarded: any entry while a withdrawal is already in
// flight, including a gateway callback re-entering the ledger, fails with
// ErrReentrancyDetected.
func (l *Ledger) Withdraw(ctx context.Context, caller string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative withdrawal amount %s", amount)
	}

	l.mu.Lock()

	if err := l.guard.enter(); err != nil {
		l.mu.Unlock()
		return err
	}

	if amount.GreaterThan(l.cfg.WithdrawLimit) {
		l.guard.exit()
		l.mu.Unlock()
		return &LimitExceededError{Requested: amount, Limit: l.cfg.WithdrawLimit}
	}

	acct := l.account(caller)
	if amount.GreaterThan(acct.Balance) {
		balance := acct.Balance
		l.guard.exit()
		l.mu.Unlock()
		return &InsufficientFundsError{Account: caller, Requested: amount, Balance: balance}
	}

	// Effects before interaction: balances, counter and history are
	// committed before the gateway is invoked.
	acct.Balance = acct.Balance.Sub(amount)
	l.totalBalance = l.totalBalance.Sub(amount)
	l.withdrawalCount++
	seq := l.withdrawalCount
	acct.History[seq] = amount
	newBalance := acct.Balance
	l.reserved = amount

	// The mutex is released for the duration of the external call; the
	// latch stays held, so any other withdrawal entering meanwhile is
	// rejected rather than interleaved with an in-flight payout.
	l.mu.Unlock()

	sendErr := l.gateway.Send(ctx, caller, amount)

	l.mu.Lock()
	defer func() {
		l.reserved = decimal.Zero
		l.guard.exit()
		l.mu.Unlock()
	}()

	if sendErr != nil {
		// Undo in place of a host transaction rollback. The latch was
		// held throughout, so no other withdrawal has touched the
		// counter or this history key.
		acct.Balance = acct.Balance.Add(amount)
		l.totalBalance = l.totalBalance.Add(amount)
		delete(acct.History, seq)
		l.withdrawalCount--
		return &TransferFailedError{Account: caller, Reason: sendErr}
	}

	l.record(ctx, Transaction{Seq: seq, Kind: "withdrawal", Account: caller, Amount: amount})
	if l.events != nil {
		l.events.WithdrawalMade(ctx, caller, amount, newBalance)
	}
	return nil
}

// Balance returns caller's current balance. Pure read, never fails;
// unknown accounts read as zero.
func (l *Ledger) Balance(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[account]
	if !ok {
		return decimal.Zero
	}
	return acct.Balance
}

// History returns a copy of account's recorded transactions, keyed by the
// global counter values in effect when each entry was written.
func (l *Ledger) History(account string) map[uint64]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[uint64]decimal.Decimal)
	if acct, ok := l.accounts[account]; ok {
		for seq, amount := range acct.History {
			out[seq] = amount
		}
	}
	return out
}

// Stats is a point-in-time snapshot of the custody pool.
type Stats struct {
	TotalBalance    decimal.Decimal `json:"total_balance"`
	BankCap         decimal.Decimal `json:"bank_cap"`
	WithdrawLimit   decimal.Decimal `json:"withdraw_limit"`
	DepositCount    uint64          `json:"deposit_count"`
	WithdrawalCount uint64          `json:"withdrawal_count"`
}

// Stats returns pool totals and counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		TotalBalance:    l.totalBalance,
		BankCap:         l.cfg.BankCap,
		WithdrawLimit:   l.cfg.WithdrawLimit,
		DepositCount:    l.depositCount,
		WithdrawalCount: l.withdrawalCount,
	}
}

// Restore replays a persisted transaction into the in-memory state. It is
// only valid before the ledger starts serving operations.
func (l *Ledger) Restore(tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.account(tx.Account)
	switch tx.Kind {
	case "deposit":
		acct.Balance = acct.Balance.Add(tx.Amount)
		l.totalBalance = l.totalBalance.Add(tx.Amount)
		if tx.Seq > l.depositCount {
			l.depositCount = tx.Seq
		}
	case "withdrawal":
		acct.Balance = acct.Balance.Sub(tx.Amount)
		l.totalBalance = l.totalBalance.Sub(tx.Amount)
		if tx.Seq > l.withdrawalCount {
			l.withdrawalCount = tx.Seq
		}
	default:
		return fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}
	acct.History[tx.Seq] = tx.Amount
	return nil
}

func (l *Ledger) record(ctx context.Context, tx Transaction) {
	if l.journal == nil {
		return
	}
	// The in-memory state is authoritative; a journal write failure is
	// logged and the completed operation stands.
	if err := l.journal.Record(ctx, tx); err != nil {
		l.log.Error("failed to journal transaction",
			slog.Uint64("seq", tx.Seq),
			slog.String("kind", tx.Kind),
			slog.String("account", tx.Account),
			slog.Any("error", err),
		)
	}
}
