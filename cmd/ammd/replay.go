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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/chain"
	"ammcore/internal/config"
	"ammcore/internal/manager"
	"ammcore/internal/metrics"
	"ammcore/internal/replay"
	"ammcore/internal/storage"
	"ammcore/internal/storage/postgres"
)

const stateName = "replay"

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.In == "" {
		return errors.New("--in is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "ammd")
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var opts []manager.Option
	if cfg.RPCURL != "" {
		if !common.IsHexAddress(cfg.FeeController) {
			return fmt.Errorf("invalid fee controller address %q", cfg.FeeController)
		}
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()

		addr := common.HexToAddress(cfg.FeeController)
		block, err := client.PinBlock(ctx)
		if err != nil {
			return err
		}
		if err := client.RequireCode(ctx, addr, block); err != nil {
			return err
		}
		controller := chain.NewFeeController(client, addr, block, logger.Named("fee-controller"))
		opts = append(opts,
			manager.WithProtocolFeeController(controller.Address(), controller),
			manager.WithControllerGasLimit(cfg.ControllerGasLimit),
			manager.WithControllerTimeout(cfg.ControllerTimeout),
		)
		logger.Info("protocol fee controller",
			zap.String("chain_id", client.ChainID().String()),
			zap.String("block", block.String()),
			zap.String("address", controller.Address().Hex()),
		)
	}

	engine, err := replay.NewEngine(replay.EngineConfig{
		ManagerOptions: opts,
		Logger:         logger,
		Metrics:        m,
	})
	if err != nil {
		return err
	}

	var (
		sink        storage.Storage
		checkpoints replay.CheckpointStore
	)
	switch cfg.Sink {
	case config.SinkPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = store
		if cfg.CheckpointEnabled {
			checkpoints = replay.NewPostgresCheckpoints(store, stateName)
		}
	default:
		sink = storage.NewJsonlStorage(cfg.Out, cfg.Errors)
		checkpoints = replay.NewFileCheckpoints(cfg.Checkpoint, cfg.CheckpointEnabled)
	}

	f, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	ops, err := replay.ReadOperations(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	runner := replay.NewRunner(replay.RunConfig{
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, engine, sink, checkpoints, logger, m)

	sum, err := runner.Run(ctx, ops)
	if err != nil {
		return err
	}

	digest, err := engine.Digest()
	if err != nil {
		return err
	}
	logger.Info("replay complete",
		zap.Int("applied", sum.Applied),
		zap.Int("failed", sum.Failed),
		zap.Int("batches", sum.Batches),
		zap.Uint64("last_seq", sum.LastSeq),
		zap.String("digest", digest),
	)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
