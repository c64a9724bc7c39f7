package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Conveyor/internal/domain"
)

// DefaultPipeline — ключ строки pipeline_snapshots для единственного pipeline.
const DefaultPipeline = "default"

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS pipeline_snapshots (
		pipeline         TEXT PRIMARY KEY,
		run_id           UUID,
		run_state        TEXT NOT NULL,
		current_step     INTEGER NOT NULL,
		overall_progress DOUBLE PRECISION NOT NULL,
		version          BIGINT NOT NULL,
		snapshot         JSONB NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const upsertSQL = `
	INSERT INTO pipeline_snapshots
		(pipeline, run_id, run_state, current_step, overall_progress, version, snapshot, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (pipeline) DO UPDATE
	SET run_id = EXCLUDED.run_id,
	    run_state = EXCLUDED.run_state,
	    current_step = EXCLUDED.current_step,
	    overall_progress = EXCLUDED.overall_progress,
	    version = EXCLUDED.version,
	    snapshot = EXCLUDED.snapshot,
	    updated_at = EXCLUDED.updated_at
`

const latestSQL = `
	SELECT snapshot
	FROM pipeline_snapshots
	WHERE pipeline = $1
`

// DB — подмножество pgxpool.Pool, которое нужно репозиторию.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SnapshotRepo хранит последний snapshot pipeline в PostgreSQL.
//
// История runs не хранится: строка на pipeline перезаписывается при
// каждой публикации. После рестарта процесса по ней можно показать,
// чем закончился последний run.
type SnapshotRepo struct {
	db       DB
	pipeline string
}

// NewSnapshotRepo создаёт SnapshotRepo. Пустой pipeline заменяется на DefaultPipeline.
func NewSnapshotRepo(db DB, pipeline string) *SnapshotRepo {
	if pipeline == "" {
		pipeline = DefaultPipeline
	}
	return &SnapshotRepo{db: db, pipeline: pipeline}
}

// EnsureSchema создаёт таблицу, если её нет.
func (r *SnapshotRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create pipeline_snapshots: %w", err)
	}
	return nil
}

// Save сохраняет snapshot как последний.
func (r *SnapshotRepo) Save(ctx context.Context, snap domain.Snapshot) error {
	args, err := r.upsertArgs(snap)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, upsertSQL, args...); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Publish реализует sink.Sink.
func (r *SnapshotRepo) Publish(ctx context.Context, snap domain.Snapshot) error {
	return r.Save(ctx, snap)
}

// Latest возвращает последний сохранённый snapshot.
func (r *SnapshotRepo) Latest(ctx context.Context) (domain.Snapshot, error) {
	var raw []byte
	if err := r.db.QueryRow(ctx, latestSQL, r.pipeline).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("select snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// upsertArgs собирает аргументы для upsertSQL.
func (r *SnapshotRepo) upsertArgs(snap domain.Snapshot) ([]any, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return []any{
		r.pipeline,
		nullUUID(snap.RunID),
		string(snap.State),
		snap.CurrentStepIndex,
		snap.OverallProgress,
		int64(snap.Version),
		data,
	}, nil
}

// nullUUID превращает uuid.Nil в NULL.
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
