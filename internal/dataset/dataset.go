package dataset

import (
	"fmt"
	"reflect"
)

type Kind string

const (
	KindInt64   Kind = "int64"
	KindFloat64 Kind = "float64"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
)

// Column is a named homogeneous sequence. A nil entry in Values is a null.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Dataset is an ordered set of equal-length columns.
type Dataset struct {
	Columns []Column
}

func (d Dataset) NumRows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

func (d Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, column := range d.Columns {
		names = append(names, column.Name)
	}
	return names
}

func (d Dataset) Column(name string) (Column, bool) {
	for _, column := range d.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// Row returns the values of row i in column order.
func (d Dataset) Row(i int) []any {
	row := make([]any, 0, len(d.Columns))
	for _, column := range d.Columns {
		row = append(row, column.Values[i])
	}
	return row
}

func (d Dataset) Validate() error {
	seen := make(map[string]struct{}, len(d.Columns))
	rows := d.NumRows()
	for _, column := range d.Columns {
		if column.Name == "" {
			return fmt.Errorf("column name is required")
		}
		if _, ok := seen[column.Name]; ok {
			return fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = struct{}{}
		if len(column.Values) != rows {
			return fmt.Errorf("column %q has %d values, want %d", column.Name, len(column.Values), rows)
		}
		for i, value := range column.Values {
			if value == nil {
				continue
			}
			if !kindMatches(column.Kind, value) {
				return fmt.Errorf("column %q row %d: %T is not %s", column.Name, i, value, column.Kind)
			}
		}
	}
	return nil
}

func (d Dataset) Equal(other Dataset) bool {
	return reflect.DeepEqual(d.Columns, other.Columns)
}

func kindMatches(kind Kind, value any) bool {
	switch kind {
	case KindInt64:
		_, ok := value.(int64)
		return ok
	case KindFloat64:
		_, ok := value.(float64)
		return ok
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}
