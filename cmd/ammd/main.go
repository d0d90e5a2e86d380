package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammd",
		Short:        "Concentrated liquidity engine tools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL file of pool operations and record pool snapshots",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("out", "./data/snapshots.jsonl", "output snapshots JSONL (jsonl sink)")
	replayCmd.Flags().String("errors", "./data/replay_errors.jsonl", "rejected operations JSONL (jsonl sink)")
	replayCmd.Flags().String("sink", "jsonl", "snapshot sink (jsonl, postgres)")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN (postgres sink)")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path (jsonl sink)")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for sink writes")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("rpc", "", "RPC URL for the protocol fee controller")
	replayCmd.Flags().String("fee-controller", "", "protocol fee controller contract address")
	replayCmd.Flags().Uint64("controller-gas-limit", 500_000, "gas cap for protocol fee controller calls")
	replayCmd.Flags().Duration("controller-timeout", 5*time.Second, "timeout for protocol fee controller calls")
	replayCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	tickCmd := &cobra.Command{
		Use:   "tick <sqrtPriceX96>",
		Short: "Print the tick of a Q64.96 square root price",
		Args:  cobra.ExactArgs(1),
		RunE:  runTick,
	}
	root.AddCommand(tickCmd)

	priceCmd := &cobra.Command{
		Use:   "price <tick>",
		Short: "Print the Q64.96 square root price at a tick",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrice,
	}
	root.AddCommand(priceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
