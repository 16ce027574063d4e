package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/cache"
	"github.com/smartgate/server/internal/config"
	dbpkg "github.com/smartgate/server/internal/db"
	"github.com/smartgate/server/internal/events"
	"github.com/smartgate/server/internal/grpcapi"
	"github.com/smartgate/server/internal/httpapi"
	"github.com/smartgate/server/internal/payment"
	"github.com/smartgate/server/internal/recognition"
	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/store/sqlite"
	"github.com/smartgate/server/internal/smartgate/types"
)

func main() {
	cfg := config.FromEnv()
	logger := cfg.Logger(os.Stdout).With("app", "smartgate-server")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Storage
	db, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer db.Close()

	worker := dbpkg.NewWorker(db)
	defer worker.Close()

	if cfg.Env == "dev" {
		if err := dbpkg.SeedDev(ctx, db, dbpkg.SeedDevOptions{
			GuestBaseCents:      cfg.GuestBaseCents,
			GuestPerMinuteCents: cfg.GuestPerMinuteCents,
		}); err != nil {
			return err
		}
		logger.Info("dev seed applied")
	}
	st := sqlite.New(db, worker)

	// Cache and gate throttle
	var (
		c       cache.Cache
		limiter httpapi.GateLimiter
	)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		c = rc
		limiter = httpapi.NewCacheLimiter(rc, cfg.GateHits, cfg.GateWindow)
		logger.Info("redis cache enabled")
	} else {
		c = cache.NewMemory()
		limiter = httpapi.NewLocalLimiter(cfg.GateHits, cfg.GateWindow)
	}

	// Event fan-out
	hub := events.NewHub(logger)
	go hub.Run(ctx)
	publishers := events.Multi{hub}
	if cfg.AMQPURL != "" {
		amqp, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer amqp.Close()
		publishers = append(publishers, amqp)
	}

	// External collaborators
	processors := payment.NewRegistry(payment.NewTouchNGo(payment.TouchNGoConfig{
		BaseURL:    cfg.TNGBaseURL,
		APIKey:     cfg.TNGAPIKey,
		MerchantID: cfg.TNGMerchantID,
		TerminalID: cfg.TNGTerminalID,
		Currency:   cfg.Currency,
		Mock:       cfg.TNGMock,
		Timeout:    cfg.ProcessorTimeout,
	}, logger))

	var recognizer recognition.Recognizer
	if cfg.RecognizerURL != "" {
		recognizer = recognition.NewHTTPRecognizer(cfg.RecognizerURL, cfg.RecognizerTimeout)
	}

	// Services
	opts := service.Options{
		Logger:           logger,
		Locks:            service.NewLocks(),
		Currency:         cfg.Currency,
		ProcessorTimeout: cfg.ProcessorTimeout,
		CacheTTL:         cfg.CacheTTL,
	}
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	defaultRate := types.GuestRate{
		Base:      types.Cents(cfg.GuestBaseCents),
		PerMinute: types.Cents(cfg.GuestPerMinuteCents),
	}

	deps := httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.HTTPAddr,
		Access:        service.NewAccessService(st, service.AccessPolicy{MinConfidence: cfg.MinConfidence}, recognizer, c, publishers, opts),
		Guests:        service.NewGuestService(st, processors, c, defaultRate, opts),
		Ledger:        service.NewLedgerService(st, processors, opts),
		Passes:        service.NewPassRegistry(st, opts),
		PassApps:      service.NewWorkflow[types.PassApplicationPayload](st, service.PassStrategy{Logger: logger}, opts),
		Upgrades:      service.NewWorkflow[types.RoleUpgradePayload](st, service.RoleUpgradeStrategy{}, opts),
		Venues:        service.NewVenueTracker(st, opts),
		Gates:         service.NewGateRegistry(st, opts),
		Directory:     service.NewDirectoryService(st, opts),
		Auth:          service.NewAuthService(st, tokens, opts),
		Notifications: service.NewNotificationService(st, opts),
		Limiter:       limiter,
		Hub:           hub,
	}
	if cfg.AdminAuth {
		deps.AdminTokens = tokens
		deps.ClientTokens = tokens
	} else {
		logger.Warn("admin and wallet routes are unauthenticated")
	}

	pruner := service.NewNotificationPruner(st, service.PrunerConfig{
		Retention: time.Duration(cfg.NotificationRetentionDays) * 24 * time.Hour,
		Interval:  time.Duration(cfg.PruneIntervalHours) * time.Hour,
	}, opts)
	pruner.Start(ctx)
	defer pruner.Stop()

	// Listeners
	srv := httpapi.NewServer(deps)
	var health *grpcapi.Server
	if cfg.GRPCAddr != "" {
		health = grpcapi.NewServer(grpcapi.Dependencies{
			Logger: logger,
			Addr:   cfg.GRPCAddr,
			Probe:  db.PingContext,
		})
	}

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Go(func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	})
	if health != nil {
		wg.Go(func() {
			if err := health.Start(); err != nil {
				errc <- err
			}
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		logger.Error("server error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if health != nil {
		_ = health.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	wg.Wait()
	return runErr
}
