// Package notify bridges ledger notifications to the NATS bus and the
// websocket event feed. Notifications are observability only: failures are
// logged, never surfaced to the operation that triggered them.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vaultledger/internal/stream"
	"github.com/terminal-bench/vaultledger/pkg/messaging"
)

// Publisher implements the vault event sinks over a NATS client and an
// optional stream feed. Either collaborator may be nil.
type Publisher struct {
	bus  *messaging.Client
	feed *stream.Feed
	log  *slog.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(bus *messaging.Client, feed *stream.Feed, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{bus: bus, feed: feed, log: log}
}

// DepositMade publishes a completed deposit.
func (p *Publisher) DepositMade(ctx context.Context, account string, amount, newBalance decimal.Decimal) {
	p.balanceEvent(ctx, messaging.SubjectDeposit, account, amount, newBalance)
}

// WithdrawalMade publishes a completed withdrawal.
func (p *Publisher) WithdrawalMade(ctx context.Context, account string, amount, newBalance decimal.Decimal) {
	p.balanceEvent(ctx, messaging.SubjectWithdrawal, account, amount, newBalance)
}

func (p *Publisher) balanceEvent(ctx context.Context, subject, account string, amount, newBalance decimal.Decimal) {
	event := messaging.BalanceEvent{
		ID:         uuid.New(),
		Account:    account,
		Amount:     amount.String(),
		NewBalance: newBalance.String(),
		Timestamp:  time.Now(),
	}
	p.publish(ctx, subject, event)
}

// OwnerChanged publishes an ownership transfer.
func (p *Publisher) OwnerChanged(ctx context.Context, oldOwner, newOwner string) {
	p.publish(ctx, messaging.SubjectOwnerChanged, messaging.OwnerChangedEvent{
		ID:        uuid.New(),
		OldOwner:  oldOwner,
		NewOwner:  newOwner,
		Timestamp: time.Now(),
	})
}

// OracleUpdated publishes a repointed oracle address.
func (p *Publisher) OracleUpdated(ctx context.Context, address string) {
	p.publish(ctx, messaging.SubjectOracleUpdated, messaging.OracleUpdatedEvent{
		ID:        uuid.New(),
		Address:   address,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event interface{}) {
	if p.bus != nil {
		if err := p.bus.Publish(ctx, subject, event); err != nil {
			p.log.Warn("failed to publish event",
				slog.String("subject", subject),
				slog.Any("error", err),
			)
		}
	}
	if p.feed != nil {
		p.feed.Broadcast(subject, event)
	}
}
