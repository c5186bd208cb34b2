package arrowconv

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFixtureDB(t *testing.T, rowCount int) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE events (
		id       BIGINT,
		name     TEXT,
		score    DOUBLE,
		active   BOOLEAN,
		payload  BLOB
	)`)
	require.NoError(t, err)

	for i := 0; i < rowCount; i++ {
		_, err = db.Exec("INSERT INTO events VALUES (?, ?, ?, ?, ?)",
			int64(i), fmt.Sprintf("event-%d", i), float64(i)*1.5, i%2 == 0, []byte{byte(i)})
		require.NoError(t, err)
	}
	return db
}

func TestSchemaFromColumnTypes(t *testing.T) {
	db := openFixtureDB(t, 1)

	rows, err := db.Query("SELECT * FROM events")
	require.NoError(t, err)
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	require.NoError(t, err)

	schema := SchemaFromColumnTypes(colTypes)
	require.Equal(t, 5, schema.NumFields())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(2).Type)
	assert.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(3).Type)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(4).Type)
	for _, f := range schema.Fields() {
		assert.True(t, f.Nullable, "field %s should be nullable", f.Name)
	}
}

func TestNextBatch_SplitsRowsIntoBatches(t *testing.T) {
	const rowCount, batchSize = 10, 4
	db := openFixtureDB(t, rowCount)

	rows, err := db.Query("SELECT id, name, score FROM events ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	require.NoError(t, err)
	schema := SchemaFromColumnTypes(colTypes)

	var sizes []int
	next := int64(0)
	for {
		rec, err := NextBatch(nil, rows, schema, batchSize)
		require.NoError(t, err)
		if rec == nil {
			break
		}
		sizes = append(sizes, int(rec.NumRows()))

		ids := rec.Column(0).(*array.Int64)
		names := rec.Column(1).(*array.String)
		for i := 0; i < ids.Len(); i++ {
			assert.Equal(t, next, ids.Value(i))
			assert.Equal(t, fmt.Sprintf("event-%d", next), names.Value(i))
			next++
		}
		rec.Release()
	}

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, int64(rowCount), next)
}

func TestNextBatch_NullsBecomeArrowNulls(t *testing.T) {
	db := openFixtureDB(t, 0)
	_, err := db.Exec("INSERT INTO events (id, name) VALUES (1, NULL)")
	require.NoError(t, err)

	rows, err := db.Query("SELECT id, name, score FROM events")
	require.NoError(t, err)
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	require.NoError(t, err)
	schema := SchemaFromColumnTypes(colTypes)

	rec, err := NextBatch(nil, rows, schema, DefaultBatchSize)
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer rec.Release()

	require.Equal(t, int64(1), rec.NumRows())
	assert.True(t, rec.Column(1).IsNull(0), "name should be null")
	assert.True(t, rec.Column(2).IsNull(0), "score should be null")
	assert.Equal(t, int64(1), rec.Column(0).(*array.Int64).Value(0))
}

func TestNextBatch_OutOfRangeIntegersBecomeNulls(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	// sqlite stores every integer as int64 regardless of the declared
	// width, so narrow columns are where scanned values can exceed the
	// builder's range
	_, err = db.Exec("CREATE TABLE narrow (small SMALLINT, tiny TINYINT, regular INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO narrow VALUES (100, 42, 7), (40000, 300, 3000000000), (-40000, -300, -3000000000)")
	require.NoError(t, err)

	rows, err := db.Query("SELECT * FROM narrow")
	require.NoError(t, err)
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	require.NoError(t, err)
	schema := SchemaFromColumnTypes(colTypes)
	require.Equal(t, arrow.PrimitiveTypes.Int16, schema.Field(0).Type)
	require.Equal(t, arrow.PrimitiveTypes.Int8, schema.Field(1).Type)
	require.Equal(t, arrow.PrimitiveTypes.Int32, schema.Field(2).Type)

	rec, err := NextBatch(nil, rows, schema, DefaultBatchSize)
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer rec.Release()
	require.Equal(t, int64(3), rec.NumRows())

	smalls := rec.Column(0).(*array.Int16)
	tinies := rec.Column(1).(*array.Int8)
	regulars := rec.Column(2).(*array.Int32)

	assert.Equal(t, int16(100), smalls.Value(0))
	assert.Equal(t, int8(42), tinies.Value(0))
	assert.Equal(t, int32(7), regulars.Value(0))

	for row := 1; row < 3; row++ {
		assert.True(t, smalls.IsNull(row), "row %d smallint should be null, not truncated", row)
		assert.True(t, tinies.IsNull(row), "row %d tinyint should be null, not truncated", row)
		assert.True(t, regulars.IsNull(row), "row %d integer should be null, not truncated", row)
	}
}

func TestNextBatch_ExhaustedReturnsNil(t *testing.T) {
	db := openFixtureDB(t, 0)

	rows, err := db.Query("SELECT id FROM events")
	require.NoError(t, err)
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	require.NoError(t, err)
	schema := SchemaFromColumnTypes(colTypes)

	rec, err := NextBatch(nil, rows, schema, DefaultBatchSize)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
