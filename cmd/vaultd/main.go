package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/vaultledger/internal/notify"
	"github.com/terminal-bench/vaultledger/internal/oracle"
	"github.com/terminal-bench/vaultledger/internal/store"
	"github.com/terminal-bench/vaultledger/internal/stream"
	"github.com/terminal-bench/vaultledger/internal/vault"
	"github.com/terminal-bench/vaultledger/pkg/messaging"
	"github.com/terminal-bench/vaultledger/pkg/units"
)

func main() {
	port := envOr("PORT", "8010")
	dbURL := os.Getenv("DATABASE_URL")
	natsURL := os.Getenv("NATS_URL")
	redisURL := os.Getenv("REDIS_URL")
	oracleURL := os.Getenv("ORACLE_URL")
	payoutURL, err := requiredEnv("PAYOUT_URL")
	if err != nil {
		log.Fatalf("Missing configuration: %v", err)
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	owner := envOr("OWNER", "admin")

	withdrawLimit := mustAmount(envOr("WITHDRAW_LIMIT", "1000000000000000000"))
	bankCap := mustAmount(envOr("BANK_CAP", "1000000000000000000000"))

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var bus *messaging.Client
	if natsURL != "" {
		var err error
		bus, err = messaging.NewClient(messaging.Config{
			URL:           natsURL,
			Name:          "vaultd",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
	}

	var cache *redis.Client
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		cache = redis.NewClient(opts)
	}

	feed := stream.NewFeed()
	publisher := notify.NewPublisher(bus, feed, logger)
	wsHandler := stream.NewWebSocketHandler(feed)

	gateway := vault.NewHTTPGateway(payoutURL)
	oracleClient := oracle.NewHTTPClient(oracleURL, cache, logger)
	registry := vault.NewAdminRegistry(owner, oracleURL, publisher)

	opts := []vault.Option{
		vault.WithEventSink(publisher),
		vault.WithLogger(logger),
	}

	var db *sql.DB
	if dbURL != "" {
		var err error
		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		journal := store.New(db)
		if err := journal.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare journal schema: %v", err)
		}
		opts = append(opts, vault.WithJournal(journal))
	}

	ledger := vault.NewLedger(vault.Config{
		WithdrawLimit: withdrawLimit,
		BankCap:       bankCap,
	}, gateway, opts...)

	if db != nil {
		if err := store.New(db).Replay(context.Background(), ledger.Restore); err != nil {
			log.Fatalf("Failed to replay journal: %v", err)
		}
	}

	// Inbound payments with no operation selector become deposits.
	if bus != nil {
		err := bus.Subscribe(messaging.SubjectReceived, func(msg *nats.Msg) {
			var p messaging.ReceivedPayment
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				logger.Warn("malformed inbound payment", slog.Any("error", err))
				return
			}
			amount, err := decimal.NewFromString(p.Amount)
			if err != nil {
				logger.Warn("malformed inbound amount", slog.String("amount", p.Amount))
				return
			}
			if err := ledger.Deposit(context.Background(), p.From, amount); err != nil {
				logger.Warn("implicit deposit rejected",
					slog.String("from", p.From),
					slog.Any("error", err),
				)
			}
		})
		if err != nil {
			log.Fatalf("Failed to subscribe to inbound payments: %v", err)
		}
	}

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api/v1")
	if jwtSecret != "" {
		api.Use(authMiddleware(jwtSecret))
	}

	api.POST("/vault/deposit", func(c *gin.Context) {
		caller, amount, ok := callerAndAmount(c)
		if !ok {
			return
		}
		if err := ledger.Deposit(c.Request.Context(), caller, amount); err != nil {
			respondVaultError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": ledger.Balance(caller)})
	})

	api.POST("/vault/withdraw", func(c *gin.Context) {
		caller, amount, ok := callerAndAmount(c)
		if !ok {
			return
		}
		if err := ledger.Withdraw(c.Request.Context(), caller, amount); err != nil {
			respondVaultError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": ledger.Balance(caller)})
	})

	api.GET("/vault/balance/:account", func(c *gin.Context) {
		account := c.Param("account")
		c.JSON(http.StatusOK, gin.H{
			"account": account,
			"balance": ledger.Balance(account),
		})
	})

	api.GET("/vault/history/:account", func(c *gin.Context) {
		account := c.Param("account")
		c.JSON(http.StatusOK, gin.H{
			"account": account,
			"history": ledger.History(account),
		})
	})

	api.GET("/vault/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, ledger.Stats())
	})

	api.GET("/vault/value/:account", func(c *gin.Context) {
		account := c.Param("account")
		price, err := oracleClient.LatestPrice(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		balance := ledger.Balance(account)
		c.JSON(http.StatusOK, gin.H{
			"account":       account,
			"balance":       balance,
			"balance_major": units.ToMajorUnit(balance),
			"price":         price,
			"quote_value":   oracle.QuoteValue(balance, price),
		})
	})

	api.POST("/admin/owner", func(c *gin.Context) {
		var req struct {
			NewOwner string `json:"new_owner"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := registry.ChangeOwner(c.Request.Context(), callerID(c), req.NewOwner); err != nil {
			respondVaultError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"owner": registry.Owner()})
	})

	api.POST("/admin/oracle", func(c *gin.Context) {
		var req struct {
			Address string `json:"address"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := registry.UpdateOracleAddress(c.Request.Context(), callerID(c), req.Address); err != nil {
			respondVaultError(c, err)
			return
		}
		oracleClient.SetFeedURL(req.Address)
		c.JSON(http.StatusOK, gin.H{"oracle_address": registry.OracleAddress()})
	})

	api.GET("/vault/events", func(c *gin.Context) {
		conn, err := wsHandler.Upgrader().Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		wsHandler.ServeWS(c.Request.Context(), conn)
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	if bus != nil {
		bus.Drain()
	}
	if db != nil {
		db.Close()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// requiredEnv reads a mandatory variable. Withdrawals cannot settle without
// a payout endpoint, so its absence is a startup error, not a runtime one.
func requiredEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func mustAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		log.Fatalf("Invalid amount %q", s)
	}
	return d
}

// authMiddleware validates a bearer token and stores its subject as the
// caller identity.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims := token.Claims.(*jwt.RegisteredClaims)
		c.Set("caller", claims.Subject)
		c.Next()
	}
}

// callerID returns the authenticated caller, or the X-Caller header when
// auth is disabled (local development).
func callerID(c *gin.Context) string {
	if caller, exists := c.Get("caller"); exists {
		return caller.(string)
	}
	return c.GetHeader("X-Caller")
}

func callerAndAmount(c *gin.Context) (string, decimal.Decimal, bool) {
	var req struct {
		Amount string `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", decimal.Zero, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return "", decimal.Zero, false
	}

	caller := callerID(c)
	if caller == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown caller"})
		return "", decimal.Zero, false
	}
	return caller, amount, true
}

// respondVaultError maps the ledger failure taxonomy onto HTTP statuses,
// carrying the structured fields through to the client.
func respondVaultError(c *gin.Context, err error) {
	var (
		capErr   *vault.CapacityExceededError
		limErr   *vault.LimitExceededError
		fundsErr *vault.InsufficientFundsError
		xferErr  *vault.TransferFailedError
		authErr  *vault.NotAuthorizedError
	)

	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "capacity_exceeded",
			"new_total": capErr.NewTotal,
			"bank_cap":  capErr.BankCap,
		})
	case errors.As(err, &limErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "limit_exceeded",
			"requested": limErr.Requested,
			"limit":     limErr.Limit,
		})
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient_funds",
			"account":   fundsErr.Account,
			"requested": fundsErr.Requested,
			"balance":   fundsErr.Balance,
		})
	case errors.As(err, &xferErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "transfer_failed",
			"reason": xferErr.Reason.Error(),
		})
	case errors.Is(err, vault.ErrReentrancyDetected):
		c.JSON(http.StatusConflict, gin.H{"error": "reentrancy_detected"})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "not_authorized",
			"caller": authErr.Caller,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
