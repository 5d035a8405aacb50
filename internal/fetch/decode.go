package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/scritchley/orc"
	orcproto "github.com/scritchley/orc/proto"

	"github.com/athenakit/athenakit/internal/table"
)

const (
	FormatORC     = "ORC"
	FormatParquet = "PARQUET"
)

// Decoder turns the bytes of one result object into a table fragment.
type Decoder interface {
	Format() string
	Decode(data []byte) (*table.Table, error)
}

// DecoderFor returns the decoder for a CTAS storage format.
func DecoderFor(format string) (Decoder, error) {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case FormatORC, "":
		return ORCDecoder{}, nil
	case FormatParquet:
		return ParquetDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported result format %q", format)
	}
}

type ORCDecoder struct{}

func (ORCDecoder) Format() string { return FormatORC }

func (ORCDecoder) Decode(data []byte) (_ *table.Table, err error) {
	defer recoverDecode(&err)

	reader, err := orc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open orc: %w", err)
	}
	defer func() { _ = reader.Close() }()

	schema := reader.Schema()
	names := schema.Columns()
	fragment := &table.Table{Columns: make([]table.Column, len(names))}
	for i, name := range names {
		field, err := schema.GetField(name)
		if err != nil {
			return nil, fmt.Errorf("orc column %q: %w", name, err)
		}
		fragment.Columns[i] = table.Column{Name: name, Type: orcColumnType(field.Type().GetKind())}
	}

	cursor := reader.Select(names...)
	for cursor.Stripes() {
		for cursor.Next() {
			values := cursor.Row()
			row := make([]any, len(names))
			for i := range row {
				if i < len(values) {
					row[i] = orcValue(values[i])
				}
			}
			fragment.Rows = append(fragment.Rows, row)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("read orc rows: %w", err)
	}
	return fragment, nil
}

func orcColumnType(kind orcproto.Type_Kind) table.Type {
	switch kind {
	case orcproto.Type_BOOLEAN:
		return table.Bool
	case orcproto.Type_BYTE, orcproto.Type_SHORT, orcproto.Type_INT, orcproto.Type_LONG:
		return table.Int
	case orcproto.Type_FLOAT, orcproto.Type_DOUBLE:
		return table.Float
	case orcproto.Type_STRING, orcproto.Type_VARCHAR, orcproto.Type_CHAR, orcproto.Type_DECIMAL:
		return table.String
	case orcproto.Type_BINARY:
		return table.Bytes
	case orcproto.Type_DATE, orcproto.Type_TIMESTAMP:
		return table.Timestamp
	default:
		return table.Unknown
	}
}

// orcValue unwraps the reader's DATE wrapper so dates arrive as time.Time
// like TIMESTAMP values do.
func orcValue(value any) any {
	if date, ok := value.(orc.Date); ok {
		return date.Time.UTC()
	}
	return table.Normalize(value)
}

type ParquetDecoder struct{}

func (ParquetDecoder) Format() string { return FormatParquet }

func (ParquetDecoder) Decode(data []byte) (_ *table.Table, err error) {
	defer recoverDecode(&err)

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	schema := file.Schema()
	paths := schema.Columns()

	fragment := &table.Table{Columns: make([]table.Column, len(paths))}
	converters := make([]func(parquet.Value) any, len(paths))
	for i, path := range paths {
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return nil, fmt.Errorf("parquet column %q not found in schema", strings.Join(path, "."))
		}
		colType, convert := parquetColumn(leaf.Node.Type())
		fragment.Columns[i] = table.Column{Name: strings.Join(path, "."), Type: colType}
		converters[i] = convert
	}

	reader := parquet.NewReader(bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	buf := make([]parquet.Row, 256)
	for {
		n, readErr := reader.ReadRows(buf)
		for _, values := range buf[:n] {
			fragment.Rows = append(fragment.Rows, parquetRow(values, converters))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read parquet rows: %w", readErr)
		}
		if n == 0 {
			break
		}
	}
	return fragment, nil
}

// parquetRow places leaf values by column index. Repeated leaves collect into
// a []any.
func parquetRow(values parquet.Row, converters []func(parquet.Value) any) []any {
	row := make([]any, len(converters))
	seen := make([]bool, len(converters))
	for _, value := range values {
		col := value.Column()
		if col < 0 || col >= len(converters) {
			continue
		}
		var converted any
		if !value.IsNull() {
			converted = converters[col](value)
		}
		if !seen[col] {
			row[col] = converted
			seen[col] = true
			continue
		}
		if list, ok := row[col].([]any); ok {
			row[col] = append(list, converted)
		} else {
			row[col] = []any{row[col], converted}
		}
	}
	return row
}

func parquetColumn(typ parquet.Type) (table.Type, func(parquet.Value) any) {
	logical := typ.LogicalType()
	switch typ.Kind() {
	case parquet.Boolean:
		return table.Bool, func(v parquet.Value) any { return v.Boolean() }
	case parquet.Int32:
		if logical != nil && logical.Date != nil {
			return table.Timestamp, func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}
		}
		return table.Int, func(v parquet.Value) any { return int64(v.Int32()) }
	case parquet.Int64:
		if logical != nil && logical.Timestamp != nil {
			unit := logical.Timestamp.Unit
			return table.Timestamp, func(v parquet.Value) any {
				switch {
				case unit.Millis != nil:
					return time.UnixMilli(v.Int64()).UTC()
				case unit.Micros != nil:
					return time.UnixMicro(v.Int64()).UTC()
				default:
					return time.Unix(0, v.Int64()).UTC()
				}
			}
		}
		return table.Int, func(v parquet.Value) any { return v.Int64() }
	case parquet.Int96:
		return table.Timestamp, func(v parquet.Value) any { return int96Time(v) }
	case parquet.Float:
		return table.Float, func(v parquet.Value) any { return float64(v.Float()) }
	case parquet.Double:
		return table.Float, func(v parquet.Value) any { return v.Double() }
	case parquet.ByteArray, parquet.FixedLenByteArray:
		// Hive writers frequently omit the UTF8 annotation on strings.
		return table.String, func(v parquet.Value) any { return string(v.ByteArray()) }
	default:
		return table.Unknown, func(v parquet.Value) any { return v.String() }
	}
}

// julianUnixEpoch is the Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

// int96Time decodes the legacy Hive/Impala timestamp: nanoseconds of the day
// in the low 8 bytes and the Julian day in the high 4.
func int96Time(v parquet.Value) time.Time {
	raw := v.Int96()
	nanos := int64(uint64(raw[1])<<32 | uint64(raw[0]))
	days := int64(raw[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}

func recoverDecode(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("decoder panic: %v", r)
	}
}
