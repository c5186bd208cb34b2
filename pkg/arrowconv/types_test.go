package arrowconv

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
)

func TestTypeFromDatabase(t *testing.T) {
	tests := []struct {
		dbType string
		want   arrow.DataType
	}{
		{"BIGINT", arrow.PrimitiveTypes.Int64},
		{"HUGEINT", arrow.PrimitiveTypes.Int64},
		{"INTEGER", arrow.PrimitiveTypes.Int32},
		{"INT", arrow.PrimitiveTypes.Int32},
		{"SMALLINT", arrow.PrimitiveTypes.Int16},
		{"TINYINT", arrow.PrimitiveTypes.Int8},
		{"DOUBLE", arrow.PrimitiveTypes.Float64},
		{"DECIMAL(18,3)", arrow.PrimitiveTypes.Float64},
		{"NUMERIC", arrow.PrimitiveTypes.Float64},
		{"FLOAT", arrow.PrimitiveTypes.Float32},
		{"REAL", arrow.PrimitiveTypes.Float32},
		{"BOOLEAN", arrow.FixedWidthTypes.Boolean},
		{"VARCHAR", arrow.BinaryTypes.String},
		{"TEXT", arrow.BinaryTypes.String},
		{"UUID", arrow.BinaryTypes.String},
		{"JSON", arrow.BinaryTypes.String},
		{"BLOB", arrow.BinaryTypes.Binary},
		{"TIMESTAMP", arrow.FixedWidthTypes.Timestamp_us},
		{"DATETIME", arrow.FixedWidthTypes.Timestamp_us},
		{"DATE", arrow.FixedWidthTypes.Date32},

		// lowercase driver spellings
		{"bigint", arrow.PrimitiveTypes.Int64},
		{"varchar(255)", arrow.BinaryTypes.String},

		// unknown types fall back to string
		{"GEOMETRY", arrow.BinaryTypes.String},
		{"", arrow.BinaryTypes.String},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeFromDatabase(tt.dbType), "db type %q", tt.dbType)
	}
}

func TestDuckDBTypeFor(t *testing.T) {
	tests := []struct {
		dt   arrow.DataType
		want string
	}{
		{arrow.FixedWidthTypes.Boolean, "BOOLEAN"},
		{arrow.PrimitiveTypes.Int8, "TINYINT"},
		{arrow.PrimitiveTypes.Int64, "BIGINT"},
		{arrow.PrimitiveTypes.Uint32, "UINTEGER"},
		{arrow.PrimitiveTypes.Float32, "FLOAT"},
		{arrow.PrimitiveTypes.Float64, "DOUBLE"},
		{arrow.BinaryTypes.String, "VARCHAR"},
		{arrow.BinaryTypes.Binary, "BLOB"},
		{arrow.FixedWidthTypes.Date32, "DATE"},
		{arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP"},
		{arrow.ListOf(arrow.PrimitiveTypes.Int64), "BIGINT[]"},
		{arrow.ListOf(arrow.ListOf(arrow.BinaryTypes.String)), "VARCHAR[][]"},
		{arrow.StructOf(
			arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32},
			arrow.Field{Name: "b", Type: arrow.BinaryTypes.String},
		), "STRUCT(a INTEGER, b VARCHAR)"},
		{arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64), "MAP(VARCHAR, BIGINT)"},
	}

	for _, tt := range tests {
		got, ok := DuckDBTypeFor(tt.dt)
		assert.True(t, ok, "%s should map", tt.dt)
		assert.Equal(t, tt.want, got, "%s", tt.dt)
	}
}

func TestDuckDBAccepts_RejectsUnmappableTypes(t *testing.T) {
	unmappable := []arrow.DataType{
		arrow.Null,
		arrow.FixedWidthTypes.MonthInterval,
		arrow.ListOf(arrow.Null),
	}
	for _, dt := range unmappable {
		assert.False(t, DuckDBAccepts(dt), "%s should be rejected", dt)
	}
}
