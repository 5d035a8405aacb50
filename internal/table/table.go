package table

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"time"
)

var ErrSchemaMismatch = errors.New("schema mismatch")

type Type int

const (
	Unknown Type = iota
	Bool
	Int
	Float
	String
	Bytes
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

type Column struct {
	Name string
	Type Type
}

// Table is a row-oriented result set. The zero value is an empty table
// without a schema.
type Table struct {
	Columns []Column
	Rows    [][]any
}

func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, col := range t.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Concat appends the rows of all fragments under the schema of the first
// fragment that has columns. Fragments without columns contribute nothing.
func Concat(fragments []*Table) (*Table, error) {
	merged := &Table{}
	for i, fragment := range fragments {
		if fragment == nil || len(fragment.Columns) == 0 {
			continue
		}
		if merged.Columns == nil {
			merged.Columns = append([]Column(nil), fragment.Columns...)
		} else if err := sameSchema(merged.Columns, fragment.Columns); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		merged.Rows = append(merged.Rows, fragment.Rows...)
	}
	resolveUnknownTypes(merged)
	return merged, nil
}

func sameSchema(want, got []Column) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: %d columns, want %d", ErrSchemaMismatch, len(got), len(want))
	}
	for i := range want {
		if want[i].Name != got[i].Name {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, got[i].Name, want[i].Name)
		}
	}
	return nil
}

// resolveUnknownTypes infers column types the decoders could not determine
// from the first non-nil value in each column.
func resolveUnknownTypes(t *Table) {
	for c := range t.Columns {
		if t.Columns[c].Type != Unknown {
			continue
		}
		for _, row := range t.Rows {
			if row[c] != nil {
				t.Columns[c].Type = TypeOf(row[c])
				break
			}
		}
	}
}

// TypeOf maps a normalized Go value to a column type.
func TypeOf(value any) Type {
	switch value.(type) {
	case bool:
		return Bool
	case int64:
		return Int
	case float64:
		return Float
	case string:
		return String
	case []byte:
		return Bytes
	case time.Time:
		return Timestamp
	default:
		return Unknown
	}
}

// Normalize converts decoder output to the small set of value types a Table
// carries: bool, int64, float64, string, []byte, time.Time or nil.
func Normalize(value any) any {
	switch typed := value.(type) {
	case nil, bool, int64, float64, string, []byte, time.Time:
		return typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case float32:
		return float64(typed)
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case interface{ UTC() time.Time }:
		// Types embedding time.Time would otherwise be caught as Stringers.
		return typed.UTC()
	case fmt.Stringer:
		return typed.String()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return fmt.Sprint(value)
}
