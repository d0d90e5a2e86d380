package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	In                 string
	Out                string
	Errors             string
	Sink               string
	PGDSN              string
	Checkpoint         string
	CheckpointEnabled  bool
	BatchSize          uint64
	MaxRetries         int
	RetryBackoff       time.Duration
	RPCURL             string
	FeeController      string
	ControllerGasLimit uint64
	ControllerTimeout  time.Duration
	MetricsAddr        string
	LogLevel           string
}

const (
	SinkJSONL    = "jsonl"
	SinkPostgres = "postgres"
)

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data/snapshots.jsonl")
	v.SetDefault("errors", "./data/replay_errors.jsonl")
	v.SetDefault("sink", SinkJSONL)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("batch-size", uint64(500))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("controller-gas-limit", uint64(500_000))
	v.SetDefault("controller-timeout", 5*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("ammd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		In:                 v.GetString("in"),
		Out:                v.GetString("out"),
		Errors:             v.GetString("errors"),
		Sink:               strings.ToLower(strings.TrimSpace(v.GetString("sink"))),
		PGDSN:              v.GetString("pg-dsn"),
		Checkpoint:         v.GetString("checkpoint"),
		CheckpointEnabled:  v.GetBool("checkpoint-enabled"),
		BatchSize:          v.GetUint64("batch-size"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		RPCURL:             v.GetString("rpc"),
		FeeController:      v.GetString("fee-controller"),
		ControllerGasLimit: v.GetUint64("controller-gas-limit"),
		ControllerTimeout:  v.GetDuration("controller-timeout"),
		MetricsAddr:        v.GetString("metrics-addr"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, cfg.Validate()
}

// Validate checks values that flags and env cannot constrain.
func (c Config) Validate() error {
	switch c.Sink {
	case SinkJSONL:
		if c.Out == "" {
			return fmt.Errorf("out path is required for the jsonl sink")
		}
	case SinkPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres sink")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if (c.FeeController == "") != (c.RPCURL == "") {
		return fmt.Errorf("rpc and fee-controller must be set together")
	}
	return nil
}
