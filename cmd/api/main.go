package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crosspointx/platform/internal/auth"
	"github.com/crosspointx/platform/internal/guard"
	"github.com/crosspointx/platform/internal/handler"
	"github.com/crosspointx/platform/internal/infra"
	"github.com/crosspointx/platform/internal/policy"
	"github.com/crosspointx/platform/internal/provider"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/crosspointx/platform/internal/service"
	"github.com/crosspointx/platform/internal/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Apply migrations
	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Repositories
	accountRepo := repository.NewAccountRepository()
	ledgerRepo := repository.NewLedgerRepository()
	methodRepo := repository.NewPaymentMethodRepository()
	referralRepo := repository.NewReferralRepository()
	sessionRepo := repository.NewSessionRepository()
	tagCodeRepo := repository.NewTagCodeRepository()
	outboxRepo := repository.NewOutboxRepository()
	uow := repository.NewUnitOfWork(pool)

	// Wallet engine
	engine := wallet.NewEngine(accountRepo, ledgerRepo, outboxRepo,
		wallet.WithAccountLocks(cfg.WalletLockAccounts))

	// External providers
	stripeProvider := provider.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeTimeout)

	// Auto-reload
	reloader := wallet.NewAutoReloader(pool, uow, engine, accountRepo, methodRepo, stripeProvider, logger)

	// Policies
	depositLimits := policy.DefaultDepositLimits()
	reloadPolicy := policy.AutoReloadPolicy{Deposits: depositLimits}

	// Services
	walletSvc := service.NewWalletService(pool, uow, engine, reloader, accountRepo, ledgerRepo, methodRepo, reloadPolicy, logger)
	paymentSvc := service.NewPaymentService(pool, uow, engine, accountRepo, ledgerRepo, methodRepo, stripeProvider, depositLimits, logger)
	referralSvc := service.NewReferralService(pool, uow, engine, accountRepo, referralRepo, outboxRepo, logger)
	authSvc := service.NewAuthService(pool, uow, accountRepo, sessionRepo, tagCodeRepo, referralSvc, outboxRepo, cfg.SessionTTL, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	walletHandler := handler.NewWalletHandler(walletSvc, paymentSvc)
	gameHandler := handler.NewGameHandler(walletSvc)
	referralHandler := handler.NewReferralHandler(referralSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, logger)

	authLimiter := guard.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}))

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Webhooks (no auth, raw body required for signature verification)
	r.Post("/webhooks/payments", webhookHandler.HandlePaymentWebhook)

	// Auth routes (no session, rate limited per IP)
	r.Group(func(r chi.Router) {
		r.Use(guard.LimitByIP(authLimiter))
		r.Use(handler.JSONContentType)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/auth/check-username", authHandler.CheckUsername)
		r.Post("/auth/validate-tag-code", authHandler.ValidateTagCode)
		r.Get("/referrals/validate", referralHandler.ValidateCode)
	})

	// Session-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Use(auth.Authenticate(authSvc))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletHandler.GetWallet)
			r.Post("/add-funds", walletHandler.AddFunds)
			r.Put("/auto-reload", walletHandler.UpdateAutoReload)
			r.Get("/transactions", walletHandler.GetTransactions)
			r.Post("/payment-methods/setup", walletHandler.CreateSetupIntent)
			r.Put("/payment-methods/{methodID}/default", walletHandler.SetDefaultPaymentMethod)
		})

		r.Route("/games", func(r chi.Router) {
			r.Post("/{gameID}/entry", gameHandler.EnterGame)
			r.Post("/{gameID}/payout", gameHandler.PayoutWinnings)
		})

		r.Get("/referrals/stats", referralHandler.GetStats)
	})

	// Expired sessions pile up otherwise; sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := sessionRepo.DeleteExpired(ctx, pool); err != nil {
					logger.Warn("session sweep failed", "error", err)
				} else if n > 0 {
					logger.Info("expired sessions removed", "count", n)
				}
			}
		}
	}()

	// Outbox poller publishes staged wallet events to Kafka
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if cfg.KafkaEnabled {
		infra.NewOutboxPoller(pool, producer, logger).Start(ctx)
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
