package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/engine"
	"github.com/sicko7947/idemflow/example/payments"
	"github.com/sicko7947/idemflow/metrics"
	"github.com/sicko7947/idemflow/middleware"
)

// Shared state used by the HTTP handlers
var orchestrator *payments.Orchestrator

// initializeApp builds the orchestrator and the middleware store for the configured backend
func initializeApp(ctx context.Context, cfg *AppConfig) (*clients, idemflow.ResultStorage[middleware.Response], idemflow.Metrics) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(level)

	var sink idemflow.Metrics = idemflow.NopMetrics{}
	if cfg.StatsdAddr != "" {
		statsdSink, err := metrics.Dial(cfg.StatsdAddr,
			[]string{"service:" + cfg.ServiceName, "env:" + cfg.ServiceEnv},
			metrics.WithLogger(log.Logger),
		)
		if err != nil {
			log.Error().Err(err).Msg("StatsD client initialization failed, metrics will be unavailable")
		} else {
			sink = statsdSink
		}
	}

	conns, err := newClients(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to initialize backend")
	}

	transfers, err := resultStorage[payments.TransferOutput](conns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transfer store")
	}
	responses, err := resultStorage[middleware.Response](conns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create response store")
	}

	ledger := payments.NewLedger(map[string]int64{
		"alice":    cfg.OpeningBalance,
		"bob":      cfg.OpeningBalance,
		"merchant": cfg.OpeningBalance,
		"bank":     0,
	})

	orchestrator = payments.NewOrchestrator(
		ledger,
		payments.Backends{
			Transfers:   transfers,
			Checkpoints: conns.checkpointStorage(),
		},
		log.Logger,
		sink,
		idemflow.WithWindow(cfg.Window),
	)

	log.Info().Str("backend", cfg.Backend).Msg("Payments orchestrator initialized successfully")
	return conns, responses, sink
}

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, responses idemflow.ResultStorage[middleware.Response], sink idemflow.Metrics, window time.Duration) {
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "idemflow-payments",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/accounts/:account", handleGetBalance)
	v1.Post("/transfers", handleTransfer)

	cfg := idemflow.DefaultConfig(
		idemflow.WithLevel(idemflow.LevelRequest),
		idemflow.WithWindow(window),
		idemflow.WithInputMismatch(idemflow.InputMismatchReject),
	)
	payouts := v1.Group("/payouts", middleware.New(middleware.Config{
		Storage:         responses,
		Idempotency:     &cfg,
		FingerprintBody: true,
		EngineOptions:   []engine.Option{engine.WithLogger(log.Logger), engine.WithMetrics(sink)},
	}))
	payouts.Post("/", handleStartPayout)
	payouts.Get("/:payoutId", handleGetPayout)
	payouts.Delete("/:payoutId/checkpoints", handleResetPayout)
}

func handleGetBalance(c fiber.Ctx) error {
	account := c.Params("account")
	balance, err := orchestrator.Ledger().Balance(account)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"account": account, "balance": balance})
}

// handleTransfer deduplicates on the Idempotency-Key header combined with the body
func handleTransfer(c fiber.Ctx) error {
	var input payments.TransferInput
	if err := c.Bind().JSON(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := orchestrator.Transfer(c.Context(), c.Get(middleware.HeaderIdempotencyKey), input)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

func handleStartPayout(c fiber.Ctx) error {
	var input payments.PayoutInput
	if err := c.Bind().JSON(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	status, err := orchestrator.RunPayout(c.Context(), input)
	if err != nil {
		log.Error().Err(err).Str("payout_id", input.PayoutID).Msg("Payout failed")
		if status != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(status)
		}
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(status)
}

func handleGetPayout(c fiber.Ctx) error {
	payoutID := c.Params("payoutId")
	status, err := orchestrator.GetPayoutStatus(c.Context(), payoutID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if status == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}
	return c.JSON(status)
}

func handleResetPayout(c fiber.Ctx) error {
	payoutID := c.Params("payoutId")
	if err := orchestrator.ResetPayout(c.Context(), payoutID); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"payoutId": payoutID, "message": "Payout checkpoints cleared"})
}

func statusFor(err error) int {
	switch {
	case idemflow.IsValidationError(err):
		return fiber.StatusBadRequest
	case idemflow.IsConflictError(err):
		return fiber.StatusConflict
	case errors.Is(err, payments.ErrInsufficientFunds), errors.Is(err, payments.ErrInvalidAmount):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrUnknownAccount):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	conns, responses, sink := initializeApp(context.Background(), cfg)
	defer conns.Close()

	app := fiber.New()
	registerRoutes(app, responses, sink, cfg.Window)

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", cfg.Address).Msg("Starting HTTP server")
		if err := app.Listen(cfg.Address); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if closer, ok := sink.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	log.Info().Msg("Server stopped")
}
