package duckdb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
)

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}

// resultSet is a materialized query result. A zero value renders as an
// empty CSV, which is what DDL statements leave behind.
type resultSet struct {
	columns []string
	rows    [][]any
}

func runQuery(ctx context.Context, db *sql.DB, sqlText string) (resultSet, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return resultSet{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return resultSet{}, fmt.Errorf("query columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return resultSet{}, fmt.Errorf("query column types: %w", err)
	}
	typeNames := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		typeNames[i] = strings.ToUpper(columnType.DatabaseTypeName())
	}

	result := resultSet{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return resultSet{}, fmt.Errorf("scan row: %w", err)
		}
		result.rows = append(result.rows, normalizeValues(values, typeNames))
	}
	if err := rows.Err(); err != nil {
		return resultSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (r resultSet) csv() (string, error) {
	if len(r.columns) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(r.columns); err != nil {
		return "", fmt.Errorf("write result header: %w", err)
	}
	record := make([]string, len(r.columns))
	for _, row := range r.rows {
		for i, value := range row {
			record[i] = dataset.FormatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write result row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush result: %w", err)
	}
	return buf.String(), nil
}

// Temporal layouts match the CSV Athena writes for DATE, TIME and TIMESTAMP.
const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.000"
	timestampLayout = "2006-01-02 15:04:05.000"
)

func normalizeValues(values []any, typeNames []string) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case time.Time:
			normalized[i] = formatTemporal(typed, typeNameAt(typeNames, i))
		case []byte:
			normalized[i] = string(typed)
		case int8:
			normalized[i] = int64(typed)
		case int16:
			normalized[i] = int64(typed)
		case int32:
			normalized[i] = int64(typed)
		case float32:
			normalized[i] = float64(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func formatTemporal(value time.Time, typeName string) string {
	switch typeName {
	case "DATE":
		return value.Format(dateLayout)
	case "TIME":
		return value.Format(timeLayout)
	default:
		return value.UTC().Format(timestampLayout)
	}
}

func typeNameAt(typeNames []string, i int) string {
	if i < len(typeNames) {
		return typeNames[i]
	}
	return ""
}
