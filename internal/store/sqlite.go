package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/quality-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS executions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	event_id          TEXT,
	status            TEXT NOT NULL DEFAULT 'pending',
	configuration     TEXT,
	quality_threshold REAL NOT NULL,
	max_iterations    INTEGER NOT NULL,
	current_iteration INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL,
	started_at        DATETIME,
	completed_at      DATETIME,
	duration_seconds  REAL NOT NULL DEFAULT 0,
	final_score       REAL,
	final_decision    TEXT,
	error_message     TEXT,
	total_artifacts   INTEGER NOT NULL DEFAULT 0,
	artifacts_passed  INTEGER NOT NULL DEFAULT 0,
	artifacts_failed  INTEGER NOT NULL DEFAULT 0,
	iterations_data   TEXT,
	final_scorecard   TEXT,
	artifact_details  TEXT,
	tags              TEXT,
	version           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT,
	event_id   TEXT,
	status     TEXT NOT NULL DEFAULT 'draft',
	version    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_project_id ON executions(project_id);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const executionColumns = `id, project_id, event_id, status, configuration, quality_threshold,
	max_iterations, current_iteration, created_at, started_at, completed_at,
	duration_seconds, final_score, final_decision, error_message,
	total_artifacts, artifacts_passed, artifacts_failed,
	iterations_data, final_scorecard, artifact_details, tags, version`

func (s *SQLiteStore) CreateExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	blobs, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectID, nullString(rec.EventID), string(rec.Status),
		nullString(rec.Configuration), rec.QualityThreshold,
		rec.MaxIterations, rec.CurrentIteration, rec.CreatedAt,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt),
		rec.DurationSeconds, nullFloat(rec.FinalScore),
		nullString(rec.FinalDecision), nullString(rec.ErrorMessage),
		rec.TotalArtifacts, rec.ArtifactsPassed, rec.ArtifactsFailed,
		blobs.iterations, blobs.scorecard, blobs.details, blobs.tags, rec.Version,
	)
	return eris.Wrapf(err, "sqlite: insert execution %s", rec.ID)
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	blobs, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET
			status = ?, configuration = ?, quality_threshold = ?,
			max_iterations = ?, current_iteration = ?,
			started_at = ?, completed_at = ?, duration_seconds = ?,
			final_score = ?, final_decision = ?, error_message = ?,
			total_artifacts = ?, artifacts_passed = ?, artifacts_failed = ?,
			iterations_data = ?, final_scorecard = ?, artifact_details = ?,
			tags = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(rec.Status), nullString(rec.Configuration), rec.QualityThreshold,
		rec.MaxIterations, rec.CurrentIteration,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt), rec.DurationSeconds,
		nullFloat(rec.FinalScore), nullString(rec.FinalDecision), nullString(rec.ErrorMessage),
		rec.TotalArtifacts, rec.ArtifactsPassed, rec.ArtifactsFailed,
		blobs.iterations, blobs.scorecard, blobs.details, blobs.tags,
		rec.ID, rec.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update execution %s", rec.ID)
	}
	if err := checkVersionedUpdate(ctx, res, s.db, "executions", rec.ID); err != nil {
		return err
	}
	rec.Version++
	return nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list executions")
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
	return recs, eris.Wrap(rows.Err(), "sqlite: list executions iterate")
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, event_id, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Name), nullString(p.EventID), string(p.Status),
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert project %s", p.ID)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, event_id, status, version, created_at, updated_at
		 FROM projects WHERE id = ?`, id)

	var p model.Project
	var name, eventID sql.NullString
	err := row.Scan(&p.ID, &name, &eventID, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: project %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}
	p.Name = name.String
	p.EventID = eventID.String
	return &p, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *model.Project) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, event_id = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		nullString(p.Name), nullString(p.EventID), string(p.Status), time.Now().UTC(),
		p.ID, p.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", p.ID)
	}
	if err := checkVersionedUpdate(ctx, res, s.db, "projects", p.ID); err != nil {
		return err
	}
	p.Version++
	return nil
}

// helpers

type recordBlobs struct {
	iterations sql.NullString
	scorecard  sql.NullString
	details    sql.NullString
	tags       sql.NullString
}

func marshalRecordBlobs(rec *model.ExecutionRecord) (recordBlobs, error) {
	var b recordBlobs

	if len(rec.Iterations) > 0 {
		data, err := json.Marshal(rec.Iterations)
		if err != nil {
			return b, eris.Wrap(err, "store: marshal iterations")
		}
		b.iterations = sql.NullString{String: string(data), Valid: true}
	}
	if rec.FinalScorecard != nil {
		data, err := json.Marshal(rec.FinalScorecard)
		if err != nil {
			return b, eris.Wrap(err, "store: marshal final scorecard")
		}
		b.scorecard = sql.NullString{String: string(data), Valid: true}
	}
	if len(rec.ArtifactDetails) > 0 {
		data, err := json.Marshal(rec.ArtifactDetails)
		if err != nil {
			return b, eris.Wrap(err, "store: marshal artifact details")
		}
		b.details = sql.NullString{String: string(data), Valid: true}
	}
	if len(rec.Tags) > 0 {
		data, err := json.Marshal(rec.Tags)
		if err != nil {
			return b, eris.Wrap(err, "store: marshal tags")
		}
		b.tags = sql.NullString{String: string(data), Valid: true}
	}
	return b, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExecution(row scannable) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	var eventID, configuration, finalDecision, errorMessage sql.NullString
	var iterations, scorecard, details, tags sql.NullString
	var startedAt, completedAt sql.NullTime
	var finalScore sql.NullFloat64

	err := row.Scan(
		&rec.ID, &rec.ProjectID, &eventID, &rec.Status, &configuration,
		&rec.QualityThreshold, &rec.MaxIterations, &rec.CurrentIteration,
		&rec.CreatedAt, &startedAt, &completedAt, &rec.DurationSeconds,
		&finalScore, &finalDecision, &errorMessage,
		&rec.TotalArtifacts, &rec.ArtifactsPassed, &rec.ArtifactsFailed,
		&iterations, &scorecard, &details, &tags, &rec.Version,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "store: execution")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan execution")
	}

	rec.EventID = eventID.String
	rec.Configuration = configuration.String
	rec.FinalDecision = finalDecision.String
	rec.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if finalScore.Valid {
		v := finalScore.Float64
		rec.FinalScore = &v
	}

	if iterations.Valid {
		if err := json.Unmarshal([]byte(iterations.String), &rec.Iterations); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal iterations")
		}
	}
	if scorecard.Valid {
		rec.FinalScorecard = &model.ScoreBreakdown{}
		if err := json.Unmarshal([]byte(scorecard.String), rec.FinalScorecard); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal final scorecard")
		}
	}
	if details.Valid {
		if err := json.Unmarshal([]byte(details.String), &rec.ArtifactDetails); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal artifact details")
		}
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal tags")
		}
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// checkVersionedUpdate distinguishes "row missing" from "version conflict"
// when an optimistic update touched zero rows.
func checkVersionedUpdate(ctx context.Context, res sql.Result, db *sql.DB, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "store: %s %s", table, id)
	}
	if err != nil {
		return eris.Wrapf(err, "store: check %s %s", table, id)
	}
	return eris.Wrapf(ErrVersionConflict, "store: %s %s", table, id)
}
