package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/metrics"
	"ammcore/internal/model"
	"ammcore/internal/storage"
	"ammcore/internal/types"
)

// RunConfig holds runtime settings for the replay.
type RunConfig struct {
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Summary counts what a run did.
type Summary struct {
	Applied int
	Failed  int
	Batches int
	LastSeq uint64
}

// Runner feeds operations through an Engine in batches, writing pool
// snapshots and a checkpoint after each batch.
type Runner struct {
	cfg         RunConfig
	engine      *Engine
	sink        storage.Storage
	checkpoints CheckpointStore
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewRunner builds a Runner. checkpoints and m may be nil.
func NewRunner(cfg RunConfig, engine *Engine, sink storage.Storage, checkpoints CheckpointStore, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:         cfg,
		engine:      engine,
		sink:        sink,
		checkpoints: checkpoints,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// Run replays ops. With a stored checkpoint the operations up to it are
// re-applied without output and the resulting state must match the
// checkpoint digest.
func (r *Runner) Run(ctx context.Context, ops []model.Operation) (Summary, error) {
	var sum Summary
	if r.engine == nil {
		return sum, fmt.Errorf("engine is nil")
	}
	if r.sink == nil {
		return sum, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return sum, fmt.Errorf("batch size must be greater than zero")
	}

	total := uint64(len(ops))
	from := uint64(1)
	if r.checkpoints != nil {
		cp, ok, err := r.checkpoints.Load(ctx)
		if err != nil {
			return sum, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && cp.LastSeq > 0 {
			if err := r.fastForward(ctx, ops, cp); err != nil {
				return sum, err
			}
			from = cp.LastSeq + 1
			sum.LastSeq = cp.LastSeq
			r.logger.Info("resume from checkpoint", zap.Uint64("last_seq", cp.LastSeq), zap.Uint64("from", from))
		}
	}

	if from > total {
		r.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("total", total))
		return sum, nil
	}

	batches, err := SplitBatches(from, total, r.cfg.BatchSize)
	if err != nil {
		return sum, err
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}
		if err := r.runBatch(ctx, ops, batch, &sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (r *Runner) fastForward(ctx context.Context, ops []model.Operation, cp model.Checkpoint) error {
	if cp.LastSeq > uint64(len(ops)) {
		return fmt.Errorf("%w: checkpoint at %d but input has %d operations", ErrCheckpointMismatch, cp.LastSeq, len(ops))
	}
	for _, op := range ops[:cp.LastSeq] {
		if _, err := r.engine.Apply(ctx, op); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	digest, err := r.engine.Digest()
	if err != nil {
		return err
	}
	if digest != cp.Digest {
		return fmt.Errorf("%w: at %d have %s, stored %s", ErrCheckpointMismatch, cp.LastSeq, digest, cp.Digest)
	}
	return nil
}

func (r *Runner) runBatch(ctx context.Context, ops []model.Operation, batch Batch, sum *Summary) error {
	timer := r.metrics.BatchTimer()
	defer timer.ObserveDuration()

	var (
		touched []types.PoolKey
		seen    = make(map[common.Hash]struct{})
		opErrs  []model.OpError
	)
	for _, op := range ops[batch.From-1 : batch.To] {
		key, err := r.engine.Apply(ctx, op)
		r.metrics.Observe("replay_"+string(op.Kind), err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.Failed++
			opErrs = append(opErrs, model.OpError{Seq: op.Seq, Kind: op.Kind, Error: err.Error()})
			r.logger.Debug("operation rejected", zap.Uint64("seq", op.Seq), zap.String("kind", string(op.Kind)), zap.Error(err))
			continue
		}
		sum.Applied++
		if key == nil {
			continue
		}
		if _, ok := seen[key.ID()]; !ok {
			seen[key.ID()] = struct{}{}
			touched = append(touched, *key)
		}
	}

	at := r.now()
	snapshots := make([]model.PoolSnapshot, 0, len(touched))
	for _, key := range touched {
		snap, err := r.engine.Snapshot(key, batch.To, at)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", key.ID().Hex(), err)
		}
		snapshots = append(snapshots, snap)
	}

	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		err := r.sink.PutSnapshotBatch(ctx, snapshots)
		if err != nil {
			r.logger.Warn("store snapshots failed", zap.Error(err), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.sink.PutOpErrors(ctx, opErrs)
	})
	if err != nil {
		return fmt.Errorf("store operation errors: %w", err)
	}

	if r.checkpoints != nil {
		digest, err := r.engine.Digest()
		if err != nil {
			return err
		}
		cp := model.Checkpoint{LastSeq: batch.To, Digest: digest, UpdatedAt: at.UTC().Format(time.RFC3339Nano)}
		err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			return r.checkpoints.Save(ctx, cp)
		})
		if err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	sum.Batches++
	sum.LastSeq = batch.To
	r.metrics.ReplayProgress(batch.To)
	r.logger.Info("batch complete",
		zap.Uint64("from", batch.From),
		zap.Uint64("to", batch.To),
		zap.Int("pools", len(snapshots)),
		zap.Int("rejected", len(opErrs)),
	)
	return nil
}
