package source

import (
	"fmt"

	"github.com/regionscan/regionscan/internal/dsn"
)

// SQLType is the store's column type code, numbered like java.sql.Types.
type SQLType int

const (
	TypeBit           SQLType = -7
	TypeTinyInt       SQLType = -6
	TypeBigInt        SQLType = -5
	TypeLongVarBinary SQLType = -4
	TypeVarBinary     SQLType = -3
	TypeBinary        SQLType = -2
	TypeLongVarChar   SQLType = -1
	TypeChar          SQLType = 1
	TypeNumeric       SQLType = 2
	TypeDecimal       SQLType = 3
	TypeInteger       SQLType = 4
	TypeSmallInt      SQLType = 5
	TypeFloat         SQLType = 6
	TypeReal          SQLType = 7
	TypeDouble        SQLType = 8
	TypeVarChar       SQLType = 12
	TypeBoolean       SQLType = 16
	TypeDate          SQLType = 91
	TypeTime          SQLType = 92
	TypeTimestamp     SQLType = 93
	TypeOther         SQLType = 1111
	TypeStruct        SQLType = 2002
	TypeArray         SQLType = 2003
	TypeTimestampTZ   SQLType = 2014
)

// DataType is the query engine's native column type.
type DataType string

const (
	StringType    DataType = "string"
	ByteType      DataType = "byte"
	ShortType     DataType = "short"
	IntegerType   DataType = "integer"
	LongType      DataType = "long"
	FloatType     DataType = "float"
	DoubleType    DataType = "double"
	DecimalType   DataType = "decimal"
	BooleanType   DataType = "boolean"
	DateType      DataType = "date"
	TimestampType DataType = "timestamp"
	BinaryType    DataType = "binary"
)

type ColumnInfo struct {
	Name string
	Type SQLType
	// TypeName is the store's own spelling of the type, kept for diagnostics.
	TypeName string
}

type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

type TableHandle struct {
	Table   string
	Columns []string
	Conn    dsn.Descriptor
}

// Partition is the half-open key range [Lower, Upper) of a table's leading primary key
// column. A nil bound is unbounded; a partition with an empty KeyColumn covers the
// whole table.
type Partition struct {
	Table     string
	Index     int
	KeyColumn string
	Lower     any
	Upper     any
}

func (p Partition) ID() string {
	return fmt.Sprintf("%s/%d", p.Table, p.Index)
}

// Row holds one record in TableHandle column order.
type Row []any
