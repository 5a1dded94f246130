package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/asset/erc20"
	"github.com/kailas-cloud/ratevault/internal/asset/memory"
	"github.com/kailas-cloud/ratevault/internal/config"
	dbRedis "github.com/kailas-cloud/ratevault/internal/db/redis"
	"github.com/kailas-cloud/ratevault/internal/domain"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
	logpkg "github.com/kailas-cloud/ratevault/internal/logger"
	"github.com/kailas-cloud/ratevault/internal/metrics"
	"github.com/kailas-cloud/ratevault/internal/recorder"
	escrowrepo "github.com/kailas-cloud/ratevault/internal/repository/escrow"
	tokenrepo "github.com/kailas-cloud/ratevault/internal/repository/token"
	"github.com/kailas-cloud/ratevault/internal/scheduler"
	"github.com/kailas-cloud/ratevault/internal/transport/api"
	chiTransport "github.com/kailas-cloud/ratevault/internal/transport/chi"
	escrowuc "github.com/kailas-cloud/ratevault/internal/usecase/escrow"
	healthuc "github.com/kailas-cloud/ratevault/internal/usecase/health"
	"github.com/kailas-cloud/ratevault/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting escrow daemon",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("escrow", cfg.Escrow.ID),
		zap.String("asset_driver", cfg.Asset.Driver),
		zap.Bool("checkpoints", cfg.Database.Enabled()),
	)

	ctx := context.Background()

	// Store is optional: without it the escrow lives in memory only.
	var store *dbRedis.Store
	if cfg.Database.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	// Register escrow metrics explicitly (no init())
	metrics.RegisterEscrowMetrics()

	asset, err := buildAsset(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to set up asset", zap.Error(err))
	}
	defer asset.close()

	// Validated by config.Validate.
	agent, _ := domain.ParseAddress(cfg.Escrow.Agent)
	rate, _ := domain.ParseAmount(cfg.Escrow.DrawRatePerSecond)
	escrowCfg := domescrow.Config{Asset: asset.Asset, Agent: agent, DrawRate: rate}

	// Pass nil interface (not typed nil pointer!) when checkpoints are disabled.
	var stateRepo escrowuc.StateRepository
	var esc *domescrow.Escrow
	if store != nil {
		repo := escrowrepo.New(store, cfg.Storage.KeyPrefix)
		stateRepo = repo
		esc, err = restoreEscrow(ctx, repo, cfg.Escrow.ID, escrowCfg, logger)
	} else {
		esc, err = domescrow.New(escrowCfg)
	}
	if err != nil {
		logger.Fatal("Failed to create escrow", zap.Error(err))
	}

	journal, err := buildJournal(cfg.Journal, logger)
	if err != nil {
		logger.Fatal("Failed to open operation journal", zap.Error(err))
	}
	defer func() { _ = journal.Close() }()

	escrowSvc := escrowuc.New(cfg.Escrow.ID, esc, stateRepo, journal, logger)
	if asset.checkpoint != nil {
		escrowSvc.WithCheckpoint(asset.checkpoint)
	}

	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, asset.Asset)

	sched := scheduler.New(escrowSvc, logger)
	if err := sched.Register(scheduler.Config{
		GaugesCron:     cfg.Scheduler.GaugesCron,
		CheckpointCron: cfg.Scheduler.CheckpointCron,
	}); err != nil {
		logger.Fatal("Failed to register scheduled jobs", zap.Error(err))
	}
	sched.Start()
	sched.RunNow()

	// Validated by config.Validate.
	callers, _ := cfg.Auth.Callers()
	if len(callers) == 0 {
		logger.Warn("No auth principals configured: write endpoints will reject every request")
	}

	server := chiTransport.NewServer(escrowSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(callers))
	r.Use(metrics.Middleware())
	api.HandlerWithOptions(server, api.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: chiTransport.BadRequestHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	sched.Stop(shutdownCtx)

	// Final checkpoint after the last request has drained.
	if err := escrowSvc.Checkpoint(shutdownCtx); err != nil {
		logger.Error("Final checkpoint failed", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// custody is the configured asset plus its lifecycle hooks.
type custody struct {
	domescrow.Asset
	checkpoint escrowuc.CheckpointFunc
	close      func()
}

// buildAsset creates the asset selected by asset.driver.
func buildAsset(ctx context.Context, cfg config.Config, store *dbRedis.Store, logger *zap.Logger) (custody, error) {
	switch cfg.Asset.Driver {
	case config.AssetERC20:
		a, err := erc20.Dial(ctx, erc20.Config{
			RPCURL:         cfg.Asset.RPCURL,
			Contract:       cfg.Asset.Contract,
			PrivateKey:     cfg.Asset.PrivateKey,
			ChainID:        cfg.Asset.ChainID,
			ConfirmTimeout: cfg.Asset.ConfirmTimeout(),
			Logger:         logger,
		})
		if err != nil {
			return custody{}, err
		}
		logger.Info("Bound ERC-20 asset",
			zap.String("contract", cfg.Asset.Contract),
			zap.String("pool", a.Pool().Hex()),
		)
		return custody{Asset: a, close: a.Close}, nil

	case config.AssetMemory:
		return buildMemoryAsset(ctx, cfg, store, logger)

	default:
		return custody{}, fmt.Errorf("unknown asset driver %q", cfg.Asset.Driver)
	}
}

// buildMemoryAsset restores the token from the store, or seeds it on first start.
func buildMemoryAsset(ctx context.Context, cfg config.Config, store *dbRedis.Store, logger *zap.Logger) (custody, error) {
	pool, err := domain.ParseAddress(cfg.Asset.Pool)
	if err != nil {
		return custody{}, fmt.Errorf("asset pool: %w", err)
	}
	tok := memory.NewToken(cfg.Asset.Symbol)
	c := custody{Asset: tok.Pool(pool), close: func() {}}

	if store != nil {
		repo := tokenrepo.New(store, cfg.Storage.KeyPrefix)
		state, found, err := repo.Load(ctx, tok.Symbol())
		if err != nil {
			return custody{}, fmt.Errorf("load token state: %w", err)
		}
		c.checkpoint = func() func(context.Context) error {
			state := tok.State()
			return func(ctx context.Context) error {
				return repo.Save(ctx, tok.Symbol(), state)
			}
		}
		if found {
			if err := tok.Load(state); err != nil {
				return custody{}, fmt.Errorf("restore token state: %w", err)
			}
			logger.Info("Restored memory asset",
				zap.String("symbol", tok.Symbol()),
				zap.String("supply", tok.Supply().Dec()),
			)
			return c, nil
		}
	}

	if err := seedToken(tok, pool, cfg.Asset.Seed); err != nil {
		return custody{}, err
	}
	logger.Info("Seeded memory asset",
		zap.String("symbol", tok.Symbol()),
		zap.String("pool", pool.Hex()),
		zap.Int("accounts", len(cfg.Asset.Seed)),
		zap.String("supply", tok.Supply().Dec()),
	)
	return c, nil
}

func seedToken(tok *memory.Token, pool common.Address, seed []config.SeedAccount) error {
	for _, s := range seed {
		who, err := domain.ParseAddress(s.Address)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if s.Balance != "" {
			bal, err := domain.ParseAmount(s.Balance)
			if err != nil {
				return fmt.Errorf("seed %s: %w", who.Hex(), err)
			}
			if err := tok.Mint(who, bal); err != nil {
				return fmt.Errorf("seed %s: %w", who.Hex(), err)
			}
		}
		if s.Approve != "" {
			allowance, err := domain.ParseAmount(s.Approve)
			if err != nil {
				return fmt.Errorf("seed %s: %w", who.Hex(), err)
			}
			tok.Approve(who, pool, allowance)
		}
	}
	return nil
}

// restoreEscrow rebuilds the escrow from its last checkpoint, or creates a fresh one.
func restoreEscrow(
	ctx context.Context, repo *escrowrepo.Repo, id string, cfg domescrow.Config, logger *zap.Logger,
) (*domescrow.Escrow, error) {
	snap, found, err := repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load escrow %s: %w", id, err)
	}
	if !found {
		logger.Info("No checkpoint found, starting a new escrow", zap.String("escrow", id))
		return domescrow.New(cfg)
	}
	e, err := domescrow.Restore(cfg, snap)
	if err != nil {
		return nil, err
	}
	logger.Info("Restored escrow from checkpoint",
		zap.String("escrow", id),
		zap.String("total_deposits", e.TotalDeposits().Dec()),
		zap.Int("depositors", e.Depositors()),
		zap.Time("last_accrual", e.LastAccrual()),
	)
	return e, nil
}

func buildJournal(cfg config.JournalConfig, logger *zap.Logger) (recorder.Recorder, error) {
	if cfg.SQLitePath == "" {
		logger.Info("Operation journal disabled")
		return recorder.NoopRecorder{}, nil
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
