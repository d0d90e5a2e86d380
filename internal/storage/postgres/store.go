package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammcore/internal/model"
	"ammcore/internal/storage"
)

var _ storage.Storage = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_id text NOT NULL,
	seq bigint NOT NULL,
	currency0 text NOT NULL,
	currency1 text NOT NULL,
	fee integer NOT NULL,
	tick_spacing integer NOT NULL,
	sqrt_price_x96 numeric(78, 0) NOT NULL,
	tick integer NOT NULL,
	liquidity numeric(78, 0) NOT NULL,
	fee_growth_global0_x128 numeric(78, 0) NOT NULL,
	fee_growth_global1_x128 numeric(78, 0) NOT NULL,
	protocol_fee integer NOT NULL,
	swap_fee integer NOT NULL,
	swap_count bigint NOT NULL DEFAULT 0,
	volume0 numeric(78, 0) NOT NULL DEFAULT 0,
	volume1 numeric(78, 0) NOT NULL DEFAULT 0,
	fees0 numeric(78, 0) NOT NULL DEFAULT 0,
	fees1 numeric(78, 0) NOT NULL DEFAULT 0,
	taken_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, seq)
);
CREATE TABLE IF NOT EXISTS replay_errors (
	seq bigint PRIMARY KEY,
	kind text NOT NULL,
	error text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS replay_state (
	name text PRIMARY KEY,
	last_seq bigint NOT NULL,
	digest text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for replay output and checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutSnapshotBatch inserts or updates pool snapshots.
func (s *Store) PutSnapshotBatch(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				pool_id, seq, currency0, currency1, fee, tick_spacing, sqrt_price_x96, tick,
				liquidity, fee_growth_global0_x128, fee_growth_global1_x128, protocol_fee, swap_fee,
				swap_count, volume0, volume1, fees0, fees1, taken_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9::numeric,$10::numeric,$11::numeric,$12,$13,
				$14,$15::numeric,$16::numeric,$17::numeric,$18::numeric,now())
			ON CONFLICT (pool_id, seq)
			DO UPDATE SET
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				fee_growth_global0_x128 = EXCLUDED.fee_growth_global0_x128,
				fee_growth_global1_x128 = EXCLUDED.fee_growth_global1_x128,
				protocol_fee = EXCLUDED.protocol_fee,
				swap_fee = EXCLUDED.swap_fee,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fees0 = EXCLUDED.fees0,
				fees1 = EXCLUDED.fees1,
				taken_at = now()
		`,
			snap.PoolID,
			int64(snap.Seq),
			snap.Currency0,
			snap.Currency1,
			int64(snap.Fee),
			snap.TickSpacing,
			snap.SqrtPriceX96,
			snap.Tick,
			snap.Liquidity,
			snap.FeeGrowthGlobal0X128,
			snap.FeeGrowthGlobal1X128,
			int32(snap.ProtocolFee),
			int64(snap.SwapFee),
			int64(snap.SwapCount),
			snap.Volume0,
			snap.Volume1,
			snap.Fees0,
			snap.Fees1,
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

// PutOpErrors records rejected operations.
func (s *Store) PutOpErrors(ctx context.Context, errs []model.OpError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range errs {
		batch.Queue(`
			INSERT INTO replay_errors (seq, kind, error, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (seq) DO UPDATE SET kind = EXCLUDED.kind, error = EXCLUDED.error
		`, int64(e.Seq), string(e.Kind), e.Error)
	}
	return s.sendBatch(ctx, batch, len(errs))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the checkpoint stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (model.Checkpoint, bool, error) {
	if name == "" {
		return model.Checkpoint{}, false, fmt.Errorf("state name required")
	}
	var (
		cp      model.Checkpoint
		lastSeq int64
	)
	row := s.pool.QueryRow(ctx, `SELECT last_seq, digest, to_char(updated_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&lastSeq, &cp.Digest, &cp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}
	cp.LastSeq = uint64(lastSeq)
	return cp, true, nil
}

// SaveState upserts the checkpoint stored under name.
func (s *Store) SaveState(ctx context.Context, name string, cp model.Checkpoint) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_seq, digest, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, digest = EXCLUDED.digest, updated_at = now()
	`, name, int64(cp.LastSeq), cp.Digest)
	return err
}
