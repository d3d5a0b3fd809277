package export

import (
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/regionscan/regionscan/internal/source"
)

const flushRows = 1024

// Schema builds the parquet schema for a row tuple. Every column is optional since
// every translated field is nullable. Decimals are written as strings to keep their
// exact digits.
func Schema(name string, fields []source.Field) (*parquet.Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one field is required")
	}
	group := parquet.Group{}
	for _, field := range fields {
		if _, ok := group[field.Name]; ok {
			return nil, fmt.Errorf("duplicate column %q", field.Name)
		}
		node, err := leafFor(field.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		group[field.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema(name, group), nil
}

func leafFor(t source.DataType) (parquet.Node, error) {
	switch t {
	case source.StringType, source.DecimalType:
		return parquet.String(), nil
	case source.ByteType, source.ShortType, source.IntegerType:
		return parquet.Int(32), nil
	case source.LongType:
		return parquet.Int(64), nil
	case source.FloatType:
		return parquet.Leaf(parquet.FloatType), nil
	case source.DoubleType:
		return parquet.Leaf(parquet.DoubleType), nil
	case source.BooleanType:
		return parquet.Leaf(parquet.BooleanType), nil
	case source.DateType:
		return parquet.Date(), nil
	case source.TimestampType:
		return parquet.Timestamp(parquet.Millisecond), nil
	case source.BinaryType:
		return parquet.Leaf(parquet.ByteArrayType), nil
	default:
		return nil, fmt.Errorf("no parquet mapping for %q", t)
	}
}

// Encoder streams rows of one partition into a parquet file, flushing in batches.
type Encoder struct {
	fields  []source.Field
	columns []int
	writer  *parquet.Writer
	batch   []parquet.Row
	rows    int64
}

func NewEncoder(w io.Writer, name string, fields []source.Field) (*Encoder, error) {
	schema, err := Schema(name, fields)
	if err != nil {
		return nil, err
	}
	columns := make([]int, len(fields))
	for i, field := range fields {
		leaf, ok := schema.Lookup(field.Name)
		if !ok {
			return nil, fmt.Errorf("column %q missing from schema", field.Name)
		}
		columns[i] = leaf.ColumnIndex
	}
	return &Encoder{
		fields:  append([]source.Field(nil), fields...),
		columns: columns,
		writer:  parquet.NewWriter(w, schema),
		batch:   make([]parquet.Row, 0, flushRows),
	}, nil
}

func (e *Encoder) Write(row source.Row) error {
	if len(row) != len(e.fields) {
		return fmt.Errorf("row has %d values, want %d", len(row), len(e.fields))
	}
	out := make(parquet.Row, len(row))
	for i, value := range row {
		column := e.columns[i]
		if value == nil {
			out[column] = parquet.NullValue().Level(0, 0, column)
			continue
		}
		v, err := convert(e.fields[i].Type, value)
		if err != nil {
			return fmt.Errorf("column %q: %w", e.fields[i].Name, err)
		}
		out[column] = v.Level(0, 1, column)
	}
	e.batch = append(e.batch, out)
	e.rows++
	if len(e.batch) >= flushRows {
		return e.flush()
	}
	return nil
}

// Rows is the number of rows written so far.
func (e *Encoder) Rows() int64 {
	return e.rows
}

// Close flushes buffered rows and writes the file footer.
func (e *Encoder) Close() error {
	if err := e.flush(); err != nil {
		return err
	}
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func (e *Encoder) flush() error {
	if len(e.batch) == 0 {
		return nil
	}
	if _, err := e.writer.WriteRows(e.batch); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	e.batch = e.batch[:0]
	return nil
}

func convert(t source.DataType, value any) (parquet.Value, error) {
	switch t {
	case source.StringType:
		return parquet.ByteArrayValue([]byte(toString(value))), nil
	case source.DecimalType:
		return parquet.ByteArrayValue([]byte(decimalString(value))), nil
	case source.ByteType, source.ShortType, source.IntegerType:
		n, err := toInt64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int32Value(int32(n)), nil
	case source.LongType:
		n, err := toInt64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(n), nil
	case source.FloatType:
		f, err := toFloat64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.FloatValue(float32(f)), nil
	case source.DoubleType:
		f, err := toFloat64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.DoubleValue(f), nil
	case source.BooleanType:
		b, ok := value.(bool)
		if !ok {
			return parquet.Value{}, fmt.Errorf("cannot encode %T as boolean", value)
		}
		return parquet.BooleanValue(b), nil
	case source.DateType:
		ts, ok := value.(time.Time)
		if !ok {
			return parquet.Value{}, fmt.Errorf("cannot encode %T as date", value)
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		return parquet.Int32Value(int32(day.Unix() / 86400)), nil
	case source.TimestampType:
		ts, ok := value.(time.Time)
		if !ok {
			return parquet.Value{}, fmt.Errorf("cannot encode %T as timestamp", value)
		}
		return parquet.Int64Value(ts.UnixMilli()), nil
	case source.BinaryType:
		switch typed := value.(type) {
		case []byte:
			return parquet.ByteArrayValue(typed), nil
		case string:
			return parquet.ByteArrayValue([]byte(typed)), nil
		}
		return parquet.Value{}, fmt.Errorf("cannot encode %T as binary", value)
	default:
		return parquet.Value{}, fmt.Errorf("no parquet mapping for %q", t)
	}
}

func toString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func decimalString(value any) string {
	switch typed := value.(type) {
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case *big.Rat:
		return typed.FloatString(18)
	case duckdb.Decimal:
		if typed.Value == nil {
			return "0"
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(typed.Scale)), nil)
		return new(big.Rat).SetFrac(typed.Value, scale).FloatString(int(typed.Scale))
	default:
		return toString(value)
	}
}

func toInt64(value any) (int64, error) {
	switch typed := value.(type) {
	case int:
		return int64(typed), nil
	case int8:
		return int64(typed), nil
	case int16:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case uint8:
		return int64(typed), nil
	case uint16:
		return int64(typed), nil
	case uint32:
		return int64(typed), nil
	case uint64:
		return int64(typed), nil
	case string:
		return strconv.ParseInt(typed, 10, 64)
	default:
		return 0, fmt.Errorf("cannot encode %T as integer", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch typed := value.(type) {
	case float32:
		return float64(typed), nil
	case float64:
		return typed, nil
	case string:
		return strconv.ParseFloat(typed, 64)
	default:
		n, err := toInt64(value)
		if err != nil {
			return 0, fmt.Errorf("cannot encode %T as float", value)
		}
		return float64(n), nil
	}
}
