package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vaultledger/pkg/circuit"
)

// PriceDecimals is the implied decimal precision of oracle prices.
const PriceDecimals = 8

var priceScale = decimal.New(1, PriceDecimals)

// ErrUnavailable is returned when neither the price feed nor the cache can
// produce a price.
var ErrUnavailable = errors.New("price oracle unavailable")

// Client fetches the latest quote-currency price of the custodied unit.
// The price is a signed integer with PriceDecimals implied decimal places.
type Client interface {
	LatestPrice(ctx context.Context) (decimal.Decimal, error)
}

// feedResponse is the JSON shape served by the price feed endpoint:
// an integer price with 8 implied decimals plus its timestamp.
type feedResponse struct {
	Price     string `json:"price"`
	Decimals  int32  `json:"decimals"`
	UpdatedAt int64  `json:"updated_at"`
}

// HTTPClient polls an HTTP price feed and caches the last good answer in
// Redis so short feed outages do not take valuation queries down with them.
type HTTPClient struct {
	mu       sync.RWMutex
	feedURL  string
	client   *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
	breaker  *circuit.Breaker
	log      *slog.Logger
}

const cacheKey = "oracle:latest_price"

// NewHTTPClient creates a client for the given feed URL. cache may be nil,
// in which case every call hits the feed.
func NewHTTPClient(feedURL string, cache *redis.Client, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		feedURL: feedURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		cache:    cache,
		cacheTTL: 5 * time.Minute,
		breaker: circuit.NewBreaker(circuit.Config{
			Name:        "price-feed",
			MaxFailures: 3,
			Timeout:     15 * time.Second,
			HalfOpenMax: 1,
		}),
		log: log,
	}
}

// SetFeedURL repoints the client at a different feed. Used when the
// administrator updates the oracle address.
func (c *HTTPClient) SetFeedURL(url string) {
	c.mu.Lock()
	c.feedURL = url
	c.mu.Unlock()
}

// LatestPrice returns the most recent price known to the oracle, preferring
// the live feed and falling back to the cache. Fails with ErrUnavailable
// when both paths are exhausted.
func (c *HTTPClient) LatestPrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := c.fetch(ctx)
	if err == nil {
		c.store(ctx, price)
		return price, nil
	}
	c.log.Warn("price feed fetch failed, trying cache", slog.Any("error", err))

	if cached, ok := c.load(ctx); ok {
		return cached, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (c *HTTPClient) fetch(ctx context.Context) (decimal.Decimal, error) {
	var price decimal.Decimal

	err := c.breaker.Execute(ctx, func() error {
		c.mu.RLock()
		url := c.feedURL
		c.mu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("price feed returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var data feedResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return fmt.Errorf("malformed feed response: %w", err)
		}

		p, err := decimal.NewFromString(data.Price)
		if err != nil {
			return fmt.Errorf("malformed feed price %q: %w", data.Price, err)
		}
		if data.Decimals != 0 && data.Decimals != PriceDecimals {
			return fmt.Errorf("unexpected feed precision %d", data.Decimals)
		}

		price = p
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func (c *HTTPClient) store(ctx context.Context, price decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey, price.String(), c.cacheTTL).Err(); err != nil {
		c.log.Warn("failed to cache price", slog.Any("error", err))
	}
}

func (c *HTTPClient) load(ctx context.Context) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	raw, err := c.cache.Get(ctx, cacheKey).Result()
	if err != nil {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

// QuoteValue converts an amount of minor units into the oracle's quote
// currency: amount * price / 10^PriceDecimals, truncated toward zero. The
// truncation is a documented precision loss, not an error.
func QuoteValue(amountMinor, price decimal.Decimal) decimal.Decimal {
	q, _ := amountMinor.Mul(price).QuoRem(priceScale, 0)
	return q
}
