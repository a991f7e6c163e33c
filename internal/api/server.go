package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxListedBanks = 50

type ServerConfig struct {
	Port              int
	AdminKey          string
	WebhookSecret     string
	BusinessName      string
	GatewayConfigured bool
	Production        bool
}

// AddressBook is the deriver view shown on the health and debug endpoints.
type AddressBook interface {
	MasterAddress() string
	Known() int
}

// Server is the HTTP boundary: health, debug, bank directory, admin stats,
// the deposit webhook and optionally the chat webhook.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	svc        *LedgerService
	book       AddressBook
	deliver    engine.Output
	config     ServerConfig
	started    time.Time
}

// NewServer builds the router. deliver sends deposit notifications to users
// and may be nil.
func NewServer(config ServerConfig, svc *LedgerService, book AddressBook, deliver engine.Output) *Server {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	s := &Server{
		router:  router,
		svc:     svc,
		book:    book,
		deliver: deliver,
		config:  config,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealth)
	s.router.GET("/debug", s.handleDebug)
	s.router.GET("/banks", s.handleBanks)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/accounts/:userId/balances", s.handleAccountBalances)
	s.router.POST("/crypto-webhook", s.handleDepositWebhook)
}

// Mount attaches an extra handler, e.g. the chat webhook.
func (s *Server) Mount(method, path string, h http.Handler) {
	s.router.Handle(method, path, gin.WrapH(h))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	zap.L().Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	users, err := s.svc.HealthCheck(ctx)
	if err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": s.config.BusinessName + " Bot",
		"users":   users,
		"hdWallet": gin.H{
			"masterAddress":      s.book.MasterAddress(),
			"totalUserAddresses": s.book.Known(),
			"system":             "BIP32/BIP44 HD wallet",
		},
		"banks":     gin.H{"loaded": len(s.svc.engine.Banks(ctx))},
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDebug(c *gin.Context) {
	ctx := c.Request.Context()
	accounts, err := s.svc.ledger.Accounts(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	referralCodes := 0
	for _, a := range accounts {
		if a.ReferralCode != "" {
			referralCodes++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"hd_wallet": gin.H{
			"master_address": s.book.MasterAddress(),
			"total_users":    s.book.Known(),
			"system":         "BIP32 HD Wallet",
		},
		"state": gin.H{
			"users":          len(accounts),
			"banks_loaded":   len(s.svc.engine.Banks(ctx)),
			"referral_codes": referralCodes,
		},
		"environment": gin.H{
			"business_name":   s.config.BusinessName,
			"has_flutterwave": s.config.GatewayConfigured,
		},
	})
}

func (s *Server) handleBanks(c *gin.Context) {
	banks := s.svc.engine.Banks(c.Request.Context())
	listed := banks
	if len(listed) > maxListedBanks {
		listed = listed[:maxListedBanks]
	}
	c.JSON(http.StatusOK, gin.H{
		"totalBanks": len(banks),
		"banks":      listed,
		"loaded":     len(banks) > 0,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// secretMatches compares in constant time; an unset secret never matches.
func secretMatches(configured, supplied string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

func (s *Server) handleStats(c *gin.Context) {
	if !secretMatches(s.config.AdminKey, c.Query("key")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAccountBalances(c *gin.Context) {
	if !secretMatches(s.config.AdminKey, c.Query("key")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return
	}

	userId := c.Param("userId")
	balances, err := s.svc.AccountBalances(c.Request.Context(), userId)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if balances == nil {
		balances = []models.AssetBalance{}
	}
	c.JSON(http.StatusOK, gin.H{"userId": userId, "balances": balances})
}

func (s *Server) handleDepositWebhook(c *gin.Context) {
	if s.config.WebhookSecret != "" && !secretMatches(s.config.WebhookSecret, c.GetHeader("X-Webhook-Secret")) {
		zap.L().Warn("Deposit webhook rejected: bad secret", zap.String("remote", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.DepositWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit payload"})
		return
	}

	result, effects, err := s.svc.ProcessDeposit(c.Request.Context(), req)
	switch {
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, engine.ErrAddressResolution):
		// The sender learns nothing about which addresses exist.
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if len(effects) > 0 && s.deliver != nil {
		s.deliver(context.WithoutCancel(c.Request.Context()), effects)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received", "result": result})
}
