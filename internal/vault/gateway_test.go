package vault

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("should post the payout and succeed on 200", func(t *testing.T) {
		var got payoutRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		g := NewHTTPGateway(srv.URL)
		require.NoError(t, g.Send(ctx, "alice", decimal.NewFromInt(800)))
		assert.Equal(t, "alice", got.To)
		assert.Equal(t, "800", got.Amount)
	})

	t.Run("should report failure on a non-success status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer srv.Close()

		g := NewHTTPGateway(srv.URL)
		err := g.Send(ctx, "alice", decimal.NewFromInt(800))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "402")
	})

	t.Run("should report failure when the endpoint is unreachable", func(t *testing.T) {
		g := NewHTTPGateway("http://127.0.0.1:1")
		assert.Error(t, g.Send(ctx, "alice", decimal.NewFromInt(1)))
	})
}
