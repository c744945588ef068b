package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reservehook/config"
	"reservehook/core/events"
	"reservehook/core/state"
	"reservehook/crypto"
	nativecommon "reservehook/native/common"
	"reservehook/native/hook"
	"reservehook/native/pool"
	"reservehook/native/reserve"
	"reservehook/native/router"
	"reservehook/native/yield"
	"reservehook/observability/logging"
	"reservehook/rpc"
	"reservehook/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("reserved", cfg.Environment, logging.Options{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	var db storage.Database
	if cfg.DataDir == "" {
		logger.Warn("no data directory configured, state will not survive restarts")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		defer ldb.Close()
		db = ldb
	}

	st := state.NewManager(db)
	emitter := events.NewLogEmitter(logger)

	ledgerAddr := crypto.ModuleAddress("reserve/ledger")
	wrapperAddr := crypto.ModuleAddress("wrapped/native")
	venueAddr := crypto.ModuleAddress("yield/venue")
	poolAddr := crypto.ModuleAddress("pool/manager")
	hookAddr := crypto.ModuleAddress("settlement/hook")
	routerAddr := crypto.ModuleAddress("swap/router")

	venue := yield.NewStrategyVenue(st, venueAddr, ledgerAddr)

	ledger := reserve.NewEngine(ledgerAddr)
	ledger.SetState(st)
	ledger.SetEmitter(emitter)
	ledger.SetPauses(nativecommon.StaticPauses{})
	ledger.SetWrapper(reserve.NewAccountWrapper(st, wrapperAddr))
	ledger.AttachVenue(venue)

	if err := bootstrapLedger(ledger, st, cfg, logger); err != nil {
		logger.Error("Failed to bootstrap reserve ledger", slog.Any("error", err))
		os.Exit(1)
	}

	pools := pool.NewManager(poolAddr)
	pools.SetState(st)
	pools.SetEmitter(emitter)
	pools.SetPauses(nativecommon.StaticPauses{})

	settlementHook := hook.NewReserveHook(hookAddr, pools, ledger)
	pairKey := pool.PoolKey{Asset0: pool.AssetNRV, Asset1: pool.AssetZRV, FeeBps: 0, Spacing: 1}
	if _, err := pools.Initialize(hookAddr, pairKey, settlementHook); err != nil {
		logger.Error("Failed to initialize settlement pair", slog.Any("error", err))
		os.Exit(1)
	}
	// Escrow tracking is in-memory; adopt whatever the module account already
	// holds from a previous run.
	for _, asset := range []string{pool.AssetNRV, pool.AssetZRV} {
		if _, err := pools.Sync(asset); err != nil {
			logger.Error("Failed to sync escrow", slog.String("asset", asset), slog.Any("error", err))
			os.Exit(1)
		}
	}

	swaps := router.NewRouter(routerAddr, pools, pairKey)
	swaps.SetState(st)
	swaps.SetEmitter(emitter)

	server := rpc.NewServer(st, ledger, swaps, logger)

	apiServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server listening", slog.String("address", cfg.RPCAddress))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("Metrics server listening", slog.String("address", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server failed", slog.Any("error", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("API shutdown error", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics shutdown error", slog.Any("error", err))
	}
}

// bootstrapLedger creates the reserve account on first start when the
// operator has configured an owner.
func bootstrapLedger(ledger *reserve.Engine, st *state.Manager, cfg *config.Config, logger *slog.Logger) error {
	ready, err := ledger.Bootstrapped()
	if err != nil {
		return err
	}
	if ready {
		return nil
	}
	if cfg.Owner == "" || cfg.YieldReceiver == "" {
		logger.Warn("Reserve ledger not bootstrapped; set Owner and YieldReceiver in the config")
		return nil
	}
	owner, err := crypto.DecodeAddress(cfg.Owner)
	if err != nil {
		return err
	}
	receiver, err := crypto.DecodeAddress(cfg.YieldReceiver)
	if err != nil {
		return err
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return err
	}
	if err := ledger.Bootstrap(owner, receiver, threshold); err != nil {
		return err
	}
	if err := st.Commit(); err != nil {
		return err
	}
	logger.Info("Reserve ledger bootstrapped",
		slog.String("owner", cfg.Owner),
		slog.String("receiver", cfg.YieldReceiver),
		slog.String("threshold_wad", threshold.String()),
	)
	return nil
}
