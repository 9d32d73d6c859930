package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/quality-engine/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS executions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	event_id          TEXT,
	status            TEXT NOT NULL DEFAULT 'pending',
	configuration     TEXT,
	quality_threshold DOUBLE PRECISION NOT NULL,
	max_iterations    INTEGER NOT NULL,
	current_iteration INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	duration_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_score       DOUBLE PRECISION,
	final_decision    TEXT,
	error_message     TEXT,
	total_artifacts   INTEGER NOT NULL DEFAULT 0,
	artifacts_passed  INTEGER NOT NULL DEFAULT 0,
	artifacts_failed  INTEGER NOT NULL DEFAULT 0,
	iterations_data   JSONB,
	final_scorecard   JSONB,
	artifact_details  JSONB,
	tags              JSONB,
	version           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT,
	event_id   TEXT,
	status     TEXT NOT NULL DEFAULT 'draft',
	version    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_project_id ON executions(project_id);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	blobs, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		rec.ID, rec.ProjectID, nullString(rec.EventID), string(rec.Status),
		nullString(rec.Configuration), rec.QualityThreshold,
		rec.MaxIterations, rec.CurrentIteration, rec.CreatedAt,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt),
		rec.DurationSeconds, nullFloat(rec.FinalScore),
		nullString(rec.FinalDecision), nullString(rec.ErrorMessage),
		rec.TotalArtifacts, rec.ArtifactsPassed, rec.ArtifactsFailed,
		blobs.iterations, blobs.scorecard, blobs.details, blobs.tags, rec.Version,
	)
	return eris.Wrapf(err, "postgres: insert execution %s", rec.ID)
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	blobs, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE executions SET
			status = $1, configuration = $2, quality_threshold = $3,
			max_iterations = $4, current_iteration = $5,
			started_at = $6, completed_at = $7, duration_seconds = $8,
			final_score = $9, final_decision = $10, error_message = $11,
			total_artifacts = $12, artifacts_passed = $13, artifacts_failed = $14,
			iterations_data = $15, final_scorecard = $16, artifact_details = $17,
			tags = $18, version = version + 1
		 WHERE id = $19 AND version = $20`,
		string(rec.Status), nullString(rec.Configuration), rec.QualityThreshold,
		rec.MaxIterations, rec.CurrentIteration,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt), rec.DurationSeconds,
		nullFloat(rec.FinalScore), nullString(rec.FinalDecision), nullString(rec.ErrorMessage),
		rec.TotalArtifacts, rec.ArtifactsPassed, rec.ArtifactsFailed,
		blobs.iterations, blobs.scorecard, blobs.details, blobs.tags,
		rec.ID, rec.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update execution %s", rec.ID)
	}
	if err := s.checkVersionedUpdate(ctx, tag, "executions", rec.ID); err != nil {
		return err
	}
	rec.Version++
	return nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	rec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: execution %s", id)
	}
	return rec, err
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ProjectID != "" {
		query += ` AND project_id = ` + arg(filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ` + arg(filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list executions")
	}
	defer rows.Close()

	var recs []model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list executions iterate")
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, event_id, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, nullString(p.Name), nullString(p.EventID), string(p.Status),
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert project %s", p.ID)
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, event_id, status, version, created_at, updated_at
		 FROM projects WHERE id = $1`, id)

	var p model.Project
	var name, eventID sql.NullString
	err := row.Scan(&p.ID, &name, &eventID, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: project %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
	}
	p.Name = name.String
	p.EventID = eventID.String
	return &p, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *model.Project) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $1, event_id = $2, status = $3, version = version + 1, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		nullString(p.Name), nullString(p.EventID), string(p.Status), time.Now().UTC(),
		p.ID, p.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project %s", p.ID)
	}
	if err := s.checkVersionedUpdate(ctx, tag, "projects", p.ID); err != nil {
		return err
	}
	p.Version++
	return nil
}

// checkVersionedUpdate distinguishes "row missing" from "version conflict"
// when an optimistic update touched zero rows.
func (s *PostgresStore) checkVersionedUpdate(ctx context.Context, tag pgconn.CommandTag, table, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: %s %s", table, id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check %s %s", table, id)
	}
	return eris.Wrapf(ErrVersionConflict, "postgres: %s %s", table, id)
}
