// Package duckdb runs statements locally against parquet objects in the
// object store and writes results where Athena would.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

var _ query.Service = (*Engine)(nil)

const downloadConcurrency = 4

var (
	externalTablePattern  = regexp.MustCompile("(?is)^CREATE\\s+EXTERNAL\\s+TABLE\\s+(IF\\s+NOT\\s+EXISTS\\s+)?([`\"\\w.]+).*?\\bLOCATION\\s+'([^']+)'")
	createDatabasePattern = regexp.MustCompile("(?is)^CREATE\\s+(DATABASE|SCHEMA)\\s+(IF\\s+NOT\\s+EXISTS\\s+)?([`\"\\w]+)\\s*$")
	ddlPattern            = regexp.MustCompile(`(?is)^(CREATE|DROP|ALTER|INSERT|UPDATE|DELETE|SET|USE)\b`)
)

type execution struct {
	input  query.StartInput
	status query.Status
}

// Engine executes a statement on the first status poll after submission,
// so callers observe QUEUED before a final state.
type Engine struct {
	Store  storage.ObjectStore
	Logger *slog.Logger

	mu         sync.Mutex
	db         *sql.DB
	workDir    string
	executions map[string]*execution
	downloads  int
}

func NewEngine(store storage.ObjectStore, logger *slog.Logger) *Engine {
	return &Engine{Store: store, Logger: logger}
}

func (e *Engine) StartQuery(_ context.Context, in query.StartInput) (string, error) {
	if strings.TrimSpace(in.SQL) == "" {
		return "", fmt.Errorf("sql is required")
	}
	if _, err := outputPrefix(in.OutputLocation); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.executions == nil {
		e.executions = map[string]*execution{}
	}
	id := uuid.NewString()
	e.executions[id] = &execution{input: in, status: query.Status{State: query.StateQueued}}
	return id, nil
}

func (e *Engine) QueryStatus(ctx context.Context, executionID string) (query.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[executionID]
	if !ok {
		return query.Status{}, fmt.Errorf("execution %q not found", executionID)
	}
	if exec.status.State != query.StateQueued {
		return exec.status, nil
	}

	if err := e.execute(ctx, executionID, exec.input); err != nil {
		if ctx.Err() != nil {
			return query.Status{}, ctx.Err()
		}
		exec.status = query.Status{State: query.StateFailed, Reason: err.Error()}
		e.logger().WarnContext(ctx, "local query failed", slog.String("execution_id", executionID), slog.Any("error", err))
	} else {
		exec.status = query.Status{State: query.StateSucceeded}
	}
	return exec.status, nil
}

// Close releases the embedded database and downloaded parquet files.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.db != nil {
		errs = append(errs, e.db.Close())
		e.db = nil
	}
	if e.workDir != "" {
		errs = append(errs, os.RemoveAll(e.workDir))
		e.workDir = ""
	}
	return errors.Join(errs...)
}

func (e *Engine) execute(ctx context.Context, executionID string, in query.StartInput) error {
	if e.Store == nil {
		return fmt.Errorf("object store is required")
	}
	db, err := e.open()
	if err != nil {
		return err
	}

	sqlText := stripTrailingSemicolons(in.SQL)
	if sqlText == "" {
		return fmt.Errorf("sql is required")
	}
	if in.Database != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(in.Database))); err != nil {
			return fmt.Errorf("create schema %q: %w", in.Database, err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`SET search_path = '%s,main'`, strings.ReplaceAll(in.Database, `'`, `''`))); err != nil {
			return fmt.Errorf("use database %q: %w", in.Database, err)
		}
	}

	result := resultSet{}
	switch {
	case externalTablePattern.MatchString(sqlText):
		if err := e.createExternalTable(ctx, db, in.Database, sqlText); err != nil {
			return err
		}
	case createDatabasePattern.MatchString(sqlText):
		match := createDatabasePattern.FindStringSubmatch(sqlText)
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(unquoteIdent(match[3])))); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
	case ddlPattern.MatchString(sqlText):
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("execute statement: %w", err)
		}
	default:
		result, err = runQuery(ctx, db, sqlText)
		if err != nil {
			return err
		}
	}

	return e.writeResult(ctx, in.OutputLocation, executionID, result)
}

func (e *Engine) createExternalTable(ctx context.Context, db *sql.DB, database, sqlText string) error {
	match := externalTablePattern.FindStringSubmatch(sqlText)
	ifNotExists := strings.TrimSpace(match[1]) != ""
	schema, table := splitTableName(match[2], database)
	prefix, err := storage.ParseLocation(match[3])
	if err != nil {
		return fmt.Errorf("external table location: %w", err)
	}
	if prefix.Key != "" && !prefix.IsPrefix() {
		prefix.Key += "/"
	}

	objects, err := e.Store.List(ctx, prefix)
	if err != nil {
		return err
	}
	var sources []storage.Location
	for _, object := range objects {
		if strings.HasSuffix(object.Location.Key, ".parquet") {
			sources = append(sources, object.Location)
		}
	}
	if len(sources) == 0 {
		return fmt.Errorf("no parquet objects under %s", prefix)
	}
	localPaths, err := e.downloadAll(ctx, sources)
	if err != nil {
		return err
	}

	if schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(schema))); err != nil {
			return fmt.Errorf("create schema %q: %w", schema, err)
		}
	}
	verb := "CREATE OR REPLACE VIEW"
	if ifNotExists {
		verb = "CREATE VIEW IF NOT EXISTS"
	}
	viewSQL := fmt.Sprintf(`%s %s AS SELECT * FROM read_parquet(%s)`, verb, qualifiedName(schema, table), quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("create view for table %q: %w", table, err)
	}
	e.logger().InfoContext(ctx, "external table registered",
		slog.String("table", qualifiedName(schema, table)),
		slog.String("location", prefix.String()),
		slog.Int("files", len(localPaths)),
	)
	return nil
}

// downloadAll copies sources into the work dir, at most downloadConcurrency
// at a time. Callers hold e.mu.
func (e *Engine) downloadAll(ctx context.Context, sources []storage.Location) ([]string, error) {
	localPaths := make([]string, len(sources))
	for i, loc := range sources {
		e.downloads++
		localPaths[i] = filepath.Join(e.workDir, fmt.Sprintf("%d_%s", e.downloads, sanitizeFileComponent(path.Base(loc.Key))))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(downloadConcurrency)
	for i, loc := range sources {
		group.Go(func() error {
			return e.download(groupCtx, loc, localPaths[i])
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return localPaths, nil
}

func (e *Engine) download(ctx context.Context, loc storage.Location, localPath string) error {
	reader, err := e.Store.Get(ctx, loc)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	if err := writeFile(localPath, reader); err != nil {
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	return nil
}

func (e *Engine) writeResult(ctx context.Context, outputLocation, executionID string, result resultSet) error {
	body, err := result.csv()
	if err != nil {
		return err
	}
	prefix, err := outputPrefix(outputLocation)
	if err != nil {
		return err
	}
	target := prefix.Join(executionID + ".csv")
	_, err = e.Store.Put(ctx, target, strings.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: "text/csv"})
	return err
}

func (e *Engine) open() (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	workDir, err := os.MkdirTemp("", "athenarun-local-")
	if err != nil {
		return nil, fmt.Errorf("create local query temp dir: %w", err)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// Views and search_path are connection scoped in an in-memory database.
	db.SetMaxOpenConns(1)
	e.db = db
	e.workDir = workDir
	return db, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func outputPrefix(outputLocation string) (storage.Location, error) {
	loc, err := storage.ParseLocation(outputLocation)
	if err != nil {
		return storage.Location{}, fmt.Errorf("output location: %w", err)
	}
	if loc.Key != "" && !loc.IsPrefix() {
		return storage.Location{}, fmt.Errorf("output location %q must end with /", outputLocation)
	}
	return loc, nil
}

func splitTableName(raw, database string) (string, string) {
	parts := strings.Split(raw, ".")
	for i := range parts {
		parts[i] = unquoteIdent(parts[i])
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2], parts[len(parts)-1]
	}
	return database, parts[0]
}

func qualifiedName(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func unquoteIdent(value string) string {
	return strings.Trim(strings.TrimSpace(value), "`\"")
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "object.parquet"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
