package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadCSV reads a comma-delimited file with a header row.
func LoadCSV(path string) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return Dataset{}, &ParseError{Source: path, Err: err}
	}
	defer func() { _ = file.Close() }()
	return ReadCSV(file, path)
}

// ReadCSV parses a header row followed by data rows. Column kinds are
// inferred from the non-empty cells; empty cells become nulls. An empty
// source yields an empty dataset.
func ReadCSV(r io.Reader, source string) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, nil
		}
		return Dataset{}, wrapCSVErr(source, err)
	}

	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return Dataset{}, &ParseError{Source: source, Line: 1, Err: fmt.Errorf("column %d has an empty name", i+1)}
		}
		if _, ok := seen[name]; ok {
			return Dataset{}, &ParseError{Source: source, Line: 1, Err: fmt.Errorf("duplicate column %q", name)}
		}
		seen[name] = struct{}{}
		header[i] = name
	}

	cells := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, wrapCSVErr(source, err)
		}
		for i, cell := range record {
			cells[i] = append(cells[i], cell)
		}
	}

	ds := Dataset{Columns: make([]Column, 0, len(header))}
	for i, name := range header {
		ds.Columns = append(ds.Columns, buildColumn(name, cells[i]))
	}
	return ds, nil
}

// WriteCSV writes ds with a header row. Nulls are written as empty cells.
func WriteCSV(w io.Writer, ds Dataset) error {
	writer := csv.NewWriter(w)
	if len(ds.Columns) == 0 {
		writer.Flush()
		return writer.Error()
	}
	if err := writer.Write(ds.ColumnNames()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for row := 0; row < ds.NumRows(); row++ {
		for i, column := range ds.Columns {
			record[i] = FormatValue(column.Values[row])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", row, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func buildColumn(name string, cells []string) Column {
	kind := inferKind(cells)
	values := make([]any, len(cells))
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		values[i] = convertCell(kind, cell)
	}
	return Column{Name: name, Kind: kind, Values: values}
}

func inferKind(cells []string) Kind {
	candidates := []Kind{KindInt64, KindFloat64, KindBool}
	for _, kind := range candidates {
		matched := false
		ok := true
		for _, cell := range cells {
			if cell == "" {
				continue
			}
			matched = true
			if !parsesAs(kind, cell) {
				ok = false
				break
			}
		}
		if matched && ok {
			return kind
		}
	}
	return KindString
}

func parsesAs(kind Kind, cell string) bool {
	var err error
	switch kind {
	case KindInt64:
		_, err = strconv.ParseInt(cell, 10, 64)
	case KindFloat64:
		_, err = strconv.ParseFloat(cell, 64)
	case KindBool:
		_, err = strconv.ParseBool(cell)
	}
	return err == nil
}

func convertCell(kind Kind, cell string) any {
	switch kind {
	case KindInt64:
		v, _ := strconv.ParseInt(cell, 10, 64)
		return v
	case KindFloat64:
		v, _ := strconv.ParseFloat(cell, 64)
		return v
	case KindBool:
		v, _ := strconv.ParseBool(cell)
		return v
	default:
		return cell
	}
}

func wrapCSVErr(source string, err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Source: source, Line: csvErr.Line, Err: csvErr.Err}
	}
	return &ParseError{Source: source, Err: err}
}
