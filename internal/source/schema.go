package source

var nativeTypes = map[SQLType]DataType{
	TypeChar:          StringType,
	TypeVarChar:       StringType,
	TypeLongVarChar:   StringType,
	TypeTinyInt:       ByteType,
	TypeSmallInt:      ShortType,
	TypeInteger:       IntegerType,
	TypeBigInt:        LongType,
	TypeReal:          FloatType,
	TypeFloat:         DoubleType,
	TypeDouble:        DoubleType,
	TypeNumeric:       DecimalType,
	TypeDecimal:       DecimalType,
	TypeBit:           BooleanType,
	TypeBoolean:       BooleanType,
	TypeDate:          DateType,
	TypeTime:          TimestampType,
	TypeTimestamp:     TimestampType,
	TypeTimestampTZ:   TimestampType,
	TypeBinary:        BinaryType,
	TypeVarBinary:     BinaryType,
	TypeLongVarBinary: BinaryType,
}

// Translate maps discovered columns to engine fields, preserving order. Every field is
// nullable because the store does not expose NOT NULL constraints. Array, struct and
// unrecognized types fail with *UnsupportedTypeError.
func Translate(columns []ColumnInfo) ([]Field, error) {
	fields := make([]Field, 0, len(columns))
	for _, column := range columns {
		dataType, ok := nativeTypes[column.Type]
		if !ok {
			return nil, &UnsupportedTypeError{Column: column.Name, Type: column.Type, TypeName: column.TypeName}
		}
		fields = append(fields, Field{Name: column.Name, Type: dataType, Nullable: true})
	}
	return fields, nil
}
