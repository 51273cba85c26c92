package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vaultledger/pkg/circuit"
)

// TransferGateway moves custodied value out of the pool to an account.
// Implementations must report failure as an error rather than panicking,
// and must not block indefinitely.
type TransferGateway interface {
	Send(ctx context.Context, to string, amount decimal.Decimal) error
}

// HTTPGateway pays out through an external settlement endpoint. Calls are
// wrapped in a circuit breaker so a dead settlement service fails fast
// instead of tying up withdrawal requests.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
	breaker  *circuit.Breaker
}

// NewHTTPGateway creates a gateway posting payouts to endpoint.
func NewHTTPGateway(endpoint string) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: circuit.NewBreaker(circuit.Config{
			Name:        "settlement",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 1,
		}),
	}
}

type payoutRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Send posts a payout for amount minor units to the settlement endpoint.
func (g *HTTPGateway) Send(ctx context.Context, to string, amount decimal.Decimal) error {
	return g.breaker.Execute(ctx, func() error {
		payload, err := json.Marshal(payoutRequest{To: to, Amount: amount.String()})
		if err != nil {
			return fmt.Errorf("failed to marshal payout: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build payout request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("payout request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("settlement endpoint returned status %d", resp.StatusCode)
		}
		return nil
	})
}
