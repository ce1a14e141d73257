package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/history"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
)

var _ history.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) RecordSubmitted(ctx context.Context, exec query.Execution) error {
	stmt := `
INSERT INTO query_execution (execution_id, sql_text, database_name, output_location, work_group, state, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (execution_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, stmt,
		exec.ID,
		exec.SQL,
		exec.Database,
		exec.OutputLocation,
		exec.WorkGroup,
		string(exec.State),
		exec.SubmittedAt,
	); err != nil {
		return fmt.Errorf("record submitted execution: %w", err)
	}
	return nil
}

func (r *Repository) RecordFinished(ctx context.Context, exec query.Execution) error {
	stmt := `
UPDATE query_execution
SET state = $2, reason = $3, attempts = $4, finished_at = $5
WHERE execution_id = $1`
	result, err := r.db.ExecContext(ctx, stmt,
		exec.ID,
		string(exec.State),
		exec.Reason,
		exec.Attempts,
		nullTime(exec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record finished execution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record finished execution rows affected: %w", err)
	}
	if affected == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (r *Repository) GetExecution(ctx context.Context, executionID string) (query.Execution, error) {
	stmt := `
SELECT execution_id, sql_text, database_name, output_location, work_group, state, reason, attempts, submitted_at, finished_at
FROM query_execution
WHERE execution_id = $1`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, stmt, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return query.Execution{}, history.ErrNotFound
		}
		return query.Execution{}, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

func (r *Repository) ListExecutions(ctx context.Context, limit int) ([]query.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT execution_id, sql_text, database_name, output_location, work_group, state, reason, attempts, submitted_at, finished_at
FROM query_execution
ORDER BY submitted_at DESC
LIMIT $1`, history.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	executions := make([]query.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return executions, nil
}

func (r *Repository) RecordStaged(ctx context.Context, in history.StagedObject) error {
	stmt := `
INSERT INTO staged_object (location, size_bytes, etag, column_count, row_count, staged_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (location)
DO UPDATE SET size_bytes = EXCLUDED.size_bytes, etag = EXCLUDED.etag, column_count = EXCLUDED.column_count,
	row_count = EXCLUDED.row_count, staged_at = EXCLUDED.staged_at`
	stagedAt := in.StagedAt
	if stagedAt.IsZero() {
		stagedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, stmt, in.Location, in.SizeBytes, in.ETag, in.Columns, in.Rows, stagedAt); err != nil {
		return fmt.Errorf("record staged object: %w", err)
	}
	return nil
}

func (r *Repository) ListStaged(ctx context.Context, limit int) ([]history.StagedObject, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT location, size_bytes, etag, column_count, row_count, staged_at
FROM staged_object
ORDER BY staged_at DESC
LIMIT $1`, history.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list staged objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	objects := make([]history.StagedObject, 0)
	for rows.Next() {
		var object history.StagedObject
		if err := rows.Scan(&object.Location, &object.SizeBytes, &object.ETag, &object.Columns, &object.Rows, &object.StagedAt); err != nil {
			return nil, fmt.Errorf("scan staged object row: %w", err)
		}
		objects = append(objects, object)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staged object rows: %w", err)
	}
	return objects, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (query.Execution, error) {
	var (
		exec       query.Execution
		state      string
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&exec.ID,
		&exec.SQL,
		&exec.Database,
		&exec.OutputLocation,
		&exec.WorkGroup,
		&state,
		&exec.Reason,
		&exec.Attempts,
		&exec.SubmittedAt,
		&finishedAt,
	); err != nil {
		return query.Execution{}, err
	}
	exec.State = query.State(state)
	if finishedAt.Valid {
		exec.FinishedAt = finishedAt.Time
	}
	return exec, nil
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
