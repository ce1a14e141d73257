package duckdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
	"github.com/sayan-gitkid/sample-aws-tests/internal/stager"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage/memory"
)

const (
	testBucket = "athena-data"
	testOutput = "s3://athena-data/output/"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	engine := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = engine.Close() })
	return engine, store
}

func stageSample(t *testing.T, store storage.ObjectStore, key string) {
	t.Helper()
	target, err := storage.NewLocation(testBucket, key)
	if err != nil {
		t.Fatalf("NewLocation() error = %v", err)
	}
	s := &stager.Stager{Store: store}
	if _, err := s.Stage(context.Background(), dataset.Sample(), target); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
}

func newRunner(engine *Engine, store storage.ObjectStore) *query.Runner {
	return &query.Runner{
		Service: engine,
		Store:   store,
		Config: query.Config{
			Database:       "db_test",
			OutputLocation: testOutput,
			PollInterval:   time.Millisecond,
			MaxAttempts:    5,
		},
	}
}

func TestEngineRunsExternalTableAndSelect(t *testing.T) {
	engine, store := newTestEngine(t)
	stageSample(t, store, "animals/sample.parquet")
	runner := newRunner(engine, store)

	ids, err := runner.RunSequence(context.Background(), []string{
		"CREATE DATABASE IF NOT EXISTS db_test",
		"CREATE EXTERNAL TABLE IF NOT EXISTS `animals`(\n  `animals` string,\n  `num_legs` bigint)\n" +
			"ROW FORMAT SERDE\n  'org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe'\n" +
			"LOCATION\n  's3://athena-data/animals/'\nTBLPROPERTIES ('has_encrypted_data'='true')",
		"SELECT animals, num_legs FROM animals WHERE num_wings = 0 ORDER BY animals;",
	})
	if err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}

	ds, err := runner.FetchResult(context.Background(), ids[2])
	if err != nil {
		t.Fatalf("FetchResult() error = %v", err)
	}
	animals, ok := ds.Column("animals")
	if !ok {
		t.Fatalf("missing animals column: %v", ds.ColumnNames())
	}
	want := []any{"dog", "fish", "spider"}
	for i, name := range want {
		if animals.Values[i] != name {
			t.Fatalf("animals = %v, want %v", animals.Values, want)
		}
	}
	legs, _ := ds.Column("num_legs")
	if legs.Values[2] != int64(8) {
		t.Fatalf("num_legs = %v", legs.Values)
	}
}

func TestEngineReadsEveryParquetObjectUnderLocation(t *testing.T) {
	engine, store := newTestEngine(t)
	for _, key := range []string{"multi/a.parquet", "multi/b.parquet", "multi/c.parquet"} {
		stageSample(t, store, key)
	}
	notes := "not parquet"
	if _, err := store.Put(context.Background(), mustLocation(t, "s3://athena-data/multi/README.txt"), strings.NewReader(notes), int64(len(notes)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	runner := newRunner(engine, store)

	ids, err := runner.RunSequence(context.Background(), []string{
		"CREATE EXTERNAL TABLE multi (animals string) STORED AS PARQUET LOCATION 's3://athena-data/multi/'",
		"SELECT COUNT(*) AS total FROM multi",
	})
	if err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}
	ds, err := runner.FetchResult(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("FetchResult() error = %v", err)
	}
	total, ok := ds.Column("total")
	if !ok || len(total.Values) != 1 || total.Values[0] != int64(12) {
		t.Fatalf("total = %+v", total)
	}
}

func TestEngineExecutesOnFirstPoll(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	id, err := engine.StartQuery(ctx, query.StartInput{SQL: "SELECT 42 AS answer", OutputLocation: testOutput})
	if err != nil {
		t.Fatalf("StartQuery() error = %v", err)
	}
	result, _ := storage.ParseLocation(query.ResultPath(testOutput, id))
	if _, err := store.Stat(ctx, result); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("result should not exist before the first poll: %v", err)
	}

	status, err := engine.QueryStatus(ctx, id)
	if err != nil {
		t.Fatalf("QueryStatus() error = %v", err)
	}
	if status.State != query.StateSucceeded {
		t.Fatalf("State = %s (%s)", status.State, status.Reason)
	}
	reader, err := store.Get(ctx, result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, _ := io.ReadAll(reader)
	if string(body) != "answer\n42\n" {
		t.Fatalf("result = %q", body)
	}

	again, err := engine.QueryStatus(ctx, id)
	if err != nil || again != status {
		t.Fatalf("second QueryStatus() = %+v, %v", again, err)
	}
}

func TestEngineFormatsTemporalColumnsLikeAthena(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	id, err := engine.StartQuery(ctx, query.StartInput{
		SQL:            "SELECT DATE '2024-01-02' AS day, TIMESTAMP '2024-01-02 03:04:05.5' AS at",
		OutputLocation: testOutput,
	})
	if err != nil {
		t.Fatalf("StartQuery() error = %v", err)
	}
	status, err := engine.QueryStatus(ctx, id)
	if err != nil || status.State != query.StateSucceeded {
		t.Fatalf("QueryStatus() = %+v, %v", status, err)
	}

	reader, err := store.Get(ctx, mustLocation(t, query.ResultPath(testOutput, id)))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, _ := io.ReadAll(reader)
	if string(body) != "day,at\n2024-01-02,2024-01-02 03:04:05.500\n" {
		t.Fatalf("result = %q", body)
	}
}

func TestNormalizeValuesFormatsTime(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := normalizeValues([]any{at, at, at, at}, []string{"DATE", "TIMESTAMP", "TIME", ""})
	want := []any{"2024-01-02", "2024-01-02 03:04:05.000", "03:04:05.000", "2024-01-02 03:04:05.000"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeValues()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngineReportsFailedStatement(t *testing.T) {
	engine, store := newTestEngine(t)
	runner := newRunner(engine, store)

	_, err := runner.Run(context.Background(), "SELECT * FROM missing_table")
	var failed *query.QueryFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want QueryFailedError", err)
	}
	if failed.State != query.StateFailed || failed.Reason == "" {
		t.Fatalf("unexpected failure: %+v", failed)
	}
}

func TestEngineExternalTableWithoutParquetFails(t *testing.T) {
	engine, store := newTestEngine(t)
	runner := newRunner(engine, store)

	_, err := runner.Run(context.Background(), "CREATE EXTERNAL TABLE t (a int) LOCATION 's3://athena-data/empty/'")
	var failed *query.QueryFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want QueryFailedError", err)
	}
	if !strings.Contains(failed.Reason, "no parquet objects") {
		t.Fatalf("Reason = %q", failed.Reason)
	}
}

func TestEngineDDLWritesEmptyResult(t *testing.T) {
	engine, store := newTestEngine(t)
	runner := newRunner(engine, store)

	id, err := runner.Run(context.Background(), "CREATE DATABASE db_test")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	info, err := store.Stat(context.Background(), mustLocation(t, runner.ResultPath(id)))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != 0 {
		t.Fatalf("Size = %d", info.Size)
	}
}

func TestEngineUnknownExecution(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.QueryStatus(context.Background(), "nope"); err == nil {
		t.Fatal("expected unknown execution error")
	}
}

func TestEngineRejectsBadOutputLocation(t *testing.T) {
	engine, _ := newTestEngine(t)
	for _, output := range []string{"", "/tmp/out/", "s3://athena-data/output"} {
		if _, err := engine.StartQuery(context.Background(), query.StartInput{SQL: "SELECT 1", OutputLocation: output}); err == nil {
			t.Fatalf("StartQuery(%q) expected error", output)
		}
	}
}

func TestSplitTableName(t *testing.T) {
	cases := []struct {
		raw, database string
		schema, table string
	}{
		{"`tx_list`", "db_test", "db_test", "tx_list"},
		{"other.`tx_list`", "db_test", "other", "tx_list"},
		{"tx_list", "", "", "tx_list"},
	}
	for _, tc := range cases {
		schema, table := splitTableName(tc.raw, tc.database)
		if schema != tc.schema || table != tc.table {
			t.Fatalf("splitTableName(%q) = %q, %q", tc.raw, schema, table)
		}
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := stripTrailingSemicolons("  SELECT 1 ; ;"); got != "SELECT 1" {
		t.Fatalf("stripTrailingSemicolons() = %q", got)
	}
}

func mustLocation(t *testing.T, uri string) storage.Location {
	t.Helper()
	loc, err := storage.ParseLocation(uri)
	if err != nil {
		t.Fatalf("ParseLocation() error = %v", err)
	}
	return loc
}
