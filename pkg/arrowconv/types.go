// Package arrowconv converts database/sql result sets and column types into
// the Arrow columnar model, and maps Arrow types back to DuckDB DDL types.
// It is shared by every connection adapter in this module.
package arrowconv

import (
	"database/sql"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// TypeFromDatabase maps a driver-reported column type name to an Arrow data
// type. The names follow DuckDB/SQLite conventions; unrecognized types fall
// back to string, which every driver can scan into.
func TypeFromDatabase(dbType string) arrow.DataType {
	dbType = strings.ToUpper(dbType)
	switch {
	case strings.Contains(dbType, "HUGEINT"), strings.Contains(dbType, "INT64"),
		strings.Contains(dbType, "BIGINT"):
		return arrow.PrimitiveTypes.Int64
	case strings.Contains(dbType, "INT32"), strings.Contains(dbType, "INTEGER"),
		dbType == "INT":
		return arrow.PrimitiveTypes.Int32
	case strings.Contains(dbType, "INT16"), strings.Contains(dbType, "SMALLINT"):
		return arrow.PrimitiveTypes.Int16
	case strings.Contains(dbType, "INT8"), strings.Contains(dbType, "TINYINT"):
		return arrow.PrimitiveTypes.Int8
	case strings.Contains(dbType, "DOUBLE"), strings.Contains(dbType, "FLOAT8"),
		strings.Contains(dbType, "DECIMAL"), strings.Contains(dbType, "NUMERIC"):
		return arrow.PrimitiveTypes.Float64
	case strings.Contains(dbType, "FLOAT"), strings.Contains(dbType, "REAL"):
		return arrow.PrimitiveTypes.Float32
	case strings.Contains(dbType, "BOOL"):
		return arrow.FixedWidthTypes.Boolean
	case strings.Contains(dbType, "VARCHAR"), strings.Contains(dbType, "TEXT"),
		strings.Contains(dbType, "STRING"), strings.Contains(dbType, "CHAR"),
		strings.Contains(dbType, "UUID"), strings.Contains(dbType, "JSON"):
		return arrow.BinaryTypes.String
	case strings.Contains(dbType, "BLOB"), strings.Contains(dbType, "BYTEA"),
		strings.Contains(dbType, "BINARY"):
		return arrow.BinaryTypes.Binary
	case strings.Contains(dbType, "TIMESTAMP"), strings.Contains(dbType, "DATETIME"):
		return arrow.FixedWidthTypes.Timestamp_us
	case strings.Contains(dbType, "DATE"):
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// SchemaFromColumnTypes builds an Arrow schema from a result set's column
// metadata. Columns are nullable: embedded engines rarely report NOT NULL
// through the driver, and a nullable field accepts both.
func SchemaFromColumnTypes(colTypes []*sql.ColumnType) *arrow.Schema {
	fields := make([]arrow.Field, len(colTypes))
	for i, ct := range colTypes {
		fields[i] = arrow.Field{
			Name:     ct.Name(),
			Type:     TypeFromDatabase(ct.DatabaseTypeName()),
			Nullable: true,
		}
	}
	return arrow.NewSchema(fields, nil)
}

// DuckDBTypeFor returns the DuckDB DDL type name for an Arrow data type, and
// whether DuckDB has a native counterpart at all. This is the engine
// type-acceptance check consulted by the schema reconciler in addition to
// the structural supportability rule.
func DuckDBTypeFor(dt arrow.DataType) (string, bool) {
	switch dt.ID() {
	case arrow.BOOL:
		return "BOOLEAN", true
	case arrow.INT8:
		return "TINYINT", true
	case arrow.INT16:
		return "SMALLINT", true
	case arrow.INT32:
		return "INTEGER", true
	case arrow.INT64:
		return "BIGINT", true
	case arrow.UINT8:
		return "UTINYINT", true
	case arrow.UINT16:
		return "USMALLINT", true
	case arrow.UINT32:
		return "UINTEGER", true
	case arrow.UINT64:
		return "UBIGINT", true
	case arrow.FLOAT16, arrow.FLOAT32:
		return "FLOAT", true
	case arrow.FLOAT64:
		return "DOUBLE", true
	case arrow.STRING, arrow.LARGE_STRING, arrow.STRING_VIEW:
		return "VARCHAR", true
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.BINARY_VIEW, arrow.FIXED_SIZE_BINARY:
		return "BLOB", true
	case arrow.DATE32, arrow.DATE64:
		return "DATE", true
	case arrow.TIMESTAMP:
		return "TIMESTAMP", true
	case arrow.TIME32, arrow.TIME64:
		return "TIME", true
	case arrow.DURATION, arrow.INTERVAL_MONTH_DAY_NANO:
		return "INTERVAL", true
	case arrow.DECIMAL128:
		return "DECIMAL", true
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		elem, ok := listElemType(dt)
		if !ok {
			return "", false
		}
		inner, ok := DuckDBTypeFor(elem)
		if !ok {
			return "", false
		}
		return inner + "[]", true
	case arrow.STRUCT:
		st, ok := dt.(*arrow.StructType)
		if !ok {
			return "", false
		}
		parts := make([]string, 0, st.NumFields())
		for _, f := range st.Fields() {
			inner, ok := DuckDBTypeFor(f.Type)
			if !ok {
				return "", false
			}
			parts = append(parts, f.Name+" "+inner)
		}
		return "STRUCT(" + strings.Join(parts, ", ") + ")", true
	case arrow.MAP:
		mt, ok := dt.(*arrow.MapType)
		if !ok {
			return "", false
		}
		key, kok := DuckDBTypeFor(mt.KeyType())
		val, vok := DuckDBTypeFor(mt.ItemType())
		if !kok || !vok {
			return "", false
		}
		return "MAP(" + key + ", " + val + ")", true
	default:
		return "", false
	}
}

// DuckDBAccepts reports whether DuckDB has a native counterpart for the
// given Arrow type. It is the TypeAcceptor the DuckDB adapter plugs into
// the schema reconciler.
func DuckDBAccepts(dt arrow.DataType) bool {
	_, ok := DuckDBTypeFor(dt)
	return ok
}

func listElemType(dt arrow.DataType) (arrow.DataType, bool) {
	switch t := dt.(type) {
	case *arrow.ListType:
		return t.Elem(), true
	case *arrow.LargeListType:
		return t.Elem(), true
	case *arrow.FixedSizeListType:
		return t.Elem(), true
	default:
		return nil, false
	}
}
