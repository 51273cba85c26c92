package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestPrice(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the feed price", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"price":"250000000000","decimals":8,"updated_at":1700000000}`))
		}))
		defer srv.Close()

		c := NewHTTPClient(srv.URL, nil, nil)
		price, err := c.LatestPrice(ctx)
		require.NoError(t, err)
		// 2500.00000000 in 8-decimal fixed point
		assert.True(t, price.Equal(decimal.NewFromInt(250_000_000_000)))
	})

	t.Run("should fail with ErrUnavailable when feed is down and cache empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewHTTPClient(srv.URL, nil, nil)
		_, err := c.LatestPrice(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("should reject a feed with unexpected precision", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"price":"123","decimals":6}`))
		}))
		defer srv.Close()

		c := NewHTTPClient(srv.URL, nil, nil)
		_, err := c.LatestPrice(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("should follow a repointed feed URL", func(t *testing.T) {
		srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"price":"100000000"}`))
		}))
		defer srvA.Close()
		srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"price":"200000000"}`))
		}))
		defer srvB.Close()

		c := NewHTTPClient(srvA.URL, nil, nil)
		price, err := c.LatestPrice(ctx)
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(100_000_000)))

		c.SetFeedURL(srvB.URL)
		price, err = c.LatestPrice(ctx)
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(200_000_000)))
	})
}

func TestQuoteValue(t *testing.T) {
	t.Run("should scale by the implied price decimals", func(t *testing.T) {
		// 3 minor units at price 2.00000000
		out := QuoteValue(decimal.NewFromInt(3), decimal.NewFromInt(200_000_000))
		assert.True(t, out.Equal(decimal.NewFromInt(6)))
	})

	t.Run("should truncate toward zero", func(t *testing.T) {
		// 3 * 0.50000000 = 1.5 -> 1
		out := QuoteValue(decimal.NewFromInt(3), decimal.NewFromInt(50_000_000))
		assert.True(t, out.Equal(decimal.NewFromInt(1)))

		// Negative prices truncate toward zero, not down.
		out = QuoteValue(decimal.NewFromInt(3), decimal.NewFromInt(-50_000_000))
		assert.True(t, out.Equal(decimal.NewFromInt(-1)))
	})
}
