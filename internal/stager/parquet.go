package stager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
)

// columnOrderKey holds the JSON-encoded column names. parquet groups sort
// their fields by name, so the original order travels as file metadata.
const columnOrderKey = "athenarun.column_order"

const readBatchSize = 128

func EncodeParquet(ds dataset.Dataset) ([]byte, error) {
	if len(ds.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}

	group := parquet.Group{}
	for _, column := range ds.Columns {
		node, err := nodeFor(column.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column.Name, err)
		}
		group[column.Name] = parquet.Optional(node)
	}
	schema := parquet.NewSchema("dataset", group)

	columnIndex := make(map[string]int, len(ds.Columns))
	for i, field := range schema.Fields() {
		columnIndex[field.Name()] = i
	}

	order, err := json.Marshal(ds.ColumnNames())
	if err != nil {
		return nil, fmt.Errorf("marshal column order: %w", err)
	}

	rows := make([]parquet.Row, 0, ds.NumRows())
	for r := 0; r < ds.NumRows(); r++ {
		row := make(parquet.Row, len(ds.Columns))
		for _, column := range ds.Columns {
			idx := columnIndex[column.Name]
			row[idx] = valueFor(column.Values[r]).Level(0, definitionLevel(column.Values[r]), idx)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf,
		schema,
		parquet.Compression(&parquet.Gzip),
		parquet.KeyValueMetadata(columnOrderKey, string(order)),
	)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeParquet(data []byte) (dataset.Dataset, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	columns := make([]dataset.Column, len(fields))
	for i, field := range fields {
		kind, err := kindFor(field.Type().Kind())
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("column %q: %w", field.Name(), err)
		}
		columns[i] = dataset.Column{Name: field.Name(), Kind: kind, Values: []any{}}
	}

	for _, rowGroup := range file.RowGroups() {
		if err := readRowGroup(rowGroup, columns); err != nil {
			return dataset.Dataset{}, err
		}
	}

	ordered, err := applyColumnOrder(file, columns)
	if err != nil {
		return dataset.Dataset{}, err
	}
	return dataset.Dataset{Columns: ordered}, nil
}

func readRowGroup(rowGroup parquet.RowGroup, columns []dataset.Column) error {
	rows := rowGroup.Rows()
	defer func() { _ = rows.Close() }()

	buf := make([]parquet.Row, readBatchSize)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			for _, value := range row {
				idx := value.Column()
				if idx < 0 || idx >= len(columns) {
					return fmt.Errorf("parquet value references unknown column %d", idx)
				}
				columns[idx].Values = append(columns[idx].Values, convertValue(columns[idx].Kind, value))
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read parquet rows: %w", err)
		}
	}
}

func applyColumnOrder(file *parquet.File, columns []dataset.Column) ([]dataset.Column, error) {
	raw, ok := file.Lookup(columnOrderKey)
	if !ok {
		return columns, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("decode column order: %w", err)
	}
	if len(names) != len(columns) {
		return nil, fmt.Errorf("column order lists %d columns, file has %d", len(names), len(columns))
	}
	byName := make(map[string]dataset.Column, len(columns))
	for _, column := range columns {
		byName[column.Name] = column
	}
	ordered := make([]dataset.Column, 0, len(columns))
	for _, name := range names {
		column, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("column order names unknown column %q", name)
		}
		ordered = append(ordered, column)
	}
	return ordered, nil
}

func nodeFor(kind dataset.Kind) (parquet.Node, error) {
	switch kind {
	case dataset.KindInt64:
		return parquet.Int(64), nil
	case dataset.KindFloat64:
		return parquet.Leaf(parquet.DoubleType), nil
	case dataset.KindString:
		return parquet.String(), nil
	case dataset.KindBool:
		return parquet.Leaf(parquet.BooleanType), nil
	default:
		return nil, fmt.Errorf("unsupported column kind %q", kind)
	}
}

func kindFor(kind parquet.Kind) (dataset.Kind, error) {
	switch kind {
	case parquet.Int64, parquet.Int32:
		return dataset.KindInt64, nil
	case parquet.Double, parquet.Float:
		return dataset.KindFloat64, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return dataset.KindString, nil
	case parquet.Boolean:
		return dataset.KindBool, nil
	default:
		return "", fmt.Errorf("unsupported parquet kind %s", kind)
	}
}

func valueFor(value any) parquet.Value {
	switch typed := value.(type) {
	case int64:
		return parquet.Int64Value(typed)
	case float64:
		return parquet.DoubleValue(typed)
	case string:
		return parquet.ByteArrayValue([]byte(typed))
	case bool:
		return parquet.BooleanValue(typed)
	default:
		return parquet.NullValue()
	}
}

func definitionLevel(value any) int {
	if value == nil {
		return 0
	}
	return 1
}

func convertValue(kind dataset.Kind, value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch kind {
	case dataset.KindInt64:
		if value.Kind() == parquet.Int32 {
			return int64(value.Int32())
		}
		return value.Int64()
	case dataset.KindFloat64:
		if value.Kind() == parquet.Float {
			return float64(value.Float())
		}
		return value.Double()
	case dataset.KindBool:
		return value.Boolean()
	default:
		return string(value.ByteArray())
	}
}
