package sqlstore

import (
	"strings"

	"github.com/regionscan/regionscan/internal/source"
)

var typeCodes = map[string]source.SQLType{
	"CHARACTER VARYING":           source.TypeVarChar,
	"VARCHAR":                     source.TypeVarChar,
	"TEXT":                        source.TypeVarChar,
	"STRING":                      source.TypeVarChar,
	"CHARACTER":                   source.TypeChar,
	"CHAR":                        source.TypeChar,
	"BPCHAR":                      source.TypeChar,
	"TINYINT":                     source.TypeTinyInt,
	"INT1":                        source.TypeTinyInt,
	"SMALLINT":                    source.TypeSmallInt,
	"INT2":                        source.TypeSmallInt,
	"INTEGER":                     source.TypeInteger,
	"INT":                         source.TypeInteger,
	"INT4":                        source.TypeInteger,
	"BIGINT":                      source.TypeBigInt,
	"INT8":                        source.TypeBigInt,
	"REAL":                        source.TypeReal,
	"FLOAT4":                      source.TypeReal,
	"FLOAT":                       source.TypeReal,
	"DOUBLE PRECISION":            source.TypeDouble,
	"DOUBLE":                      source.TypeDouble,
	"FLOAT8":                      source.TypeDouble,
	"NUMERIC":                     source.TypeNumeric,
	"DECIMAL":                     source.TypeDecimal,
	"BOOLEAN":                     source.TypeBoolean,
	"BOOL":                        source.TypeBoolean,
	"DATE":                        source.TypeDate,
	"TIME":                        source.TypeTime,
	"TIME WITHOUT TIME ZONE":      source.TypeTime,
	"TIMESTAMP":                   source.TypeTimestamp,
	"TIMESTAMP WITHOUT TIME ZONE": source.TypeTimestamp,
	"DATETIME":                    source.TypeTimestamp,
	"TIMESTAMP WITH TIME ZONE":    source.TypeTimestampTZ,
	"TIMESTAMPTZ":                 source.TypeTimestampTZ,
	"BYTEA":                       source.TypeVarBinary,
	"BLOB":                        source.TypeVarBinary,
	"BYTES":                       source.TypeVarBinary,
	"ARRAY":                       source.TypeArray,
}

// TypeCode maps an information_schema data_type spelling to a type code. Parameters
// such as DECIMAL(18,3) are ignored; list and nested types map to ARRAY and STRUCT;
// anything else is OTHER.
func TypeCode(typeName string) source.SQLType {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if strings.HasSuffix(name, "[]") {
		return source.TypeArray
	}
	for _, prefix := range []string{"STRUCT", "MAP", "UNION"} {
		if strings.HasPrefix(name, prefix) {
			return source.TypeStruct
		}
	}
	if i := strings.Index(name, "("); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if code, ok := typeCodes[name]; ok {
		return code
	}
	return source.TypeOther
}
