package arrowconv

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultBatchSize is the number of rows accumulated into one record batch.
const DefaultBatchSize = 1024

// NextBatch scans up to batchSize rows from the result set into a record
// batch with the given schema. It returns nil when the result set is
// exhausted. The caller owns the returned batch and must Release it.
func NextBatch(alloc memory.Allocator, rows *sql.Rows, schema *arrow.Schema, batchSize int) (arrow.RecordBatch, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	numFields := schema.NumFields()
	values := make([]interface{}, numFields)
	valuePtrs := make([]interface{}, numFields)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	count := 0
	for count < batchSize && rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("arrowconv: failed to scan row: %w", err)
		}
		for i, val := range values {
			appendValue(builder.Field(i), val)
		}
		count++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arrowconv: row iteration failed: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return builder.NewRecordBatch(), nil
}

// appendValue appends a scanned driver value to the matching Arrow builder.
// Values whose dynamic type cannot be coerced become nulls rather than
// failing the whole batch.
func appendValue(builder array.Builder, val interface{}) {
	if val == nil {
		builder.AppendNull()
		return
	}

	switch b := builder.(type) {
	case *array.Int64Builder:
		switch v := val.(type) {
		case int64:
			b.Append(v)
		case int32:
			b.Append(int64(v))
		case int:
			b.Append(int64(v))
		default:
			b.AppendNull()
		}
	case *array.Int32Builder:
		switch v := val.(type) {
		case int32:
			b.Append(v)
		case int64:
			appendInt32InRange(b, v)
		case int:
			appendInt32InRange(b, int64(v))
		default:
			b.AppendNull()
		}
	case *array.Int16Builder:
		switch v := val.(type) {
		case int16:
			b.Append(v)
		case int32:
			appendInt16InRange(b, int64(v))
		case int64:
			appendInt16InRange(b, v)
		default:
			b.AppendNull()
		}
	case *array.Int8Builder:
		switch v := val.(type) {
		case int8:
			b.Append(v)
		case int32:
			appendInt8InRange(b, int64(v))
		case int64:
			appendInt8InRange(b, v)
		default:
			b.AppendNull()
		}
	case *array.Float64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		case int64:
			b.Append(float64(v))
		default:
			b.AppendNull()
		}
	case *array.Float32Builder:
		switch v := val.(type) {
		case float32:
			b.Append(v)
		case float64:
			b.Append(float32(v))
		default:
			b.AppendNull()
		}
	case *array.BooleanBuilder:
		switch v := val.(type) {
		case bool:
			b.Append(v)
		case int64:
			b.Append(v != 0)
		default:
			b.AppendNull()
		}
	case *array.StringBuilder:
		switch v := val.(type) {
		case string:
			b.Append(v)
		case []byte:
			b.Append(string(v))
		case time.Time:
			b.Append(v.Format(time.RFC3339Nano))
		default:
			b.Append(fmt.Sprintf("%v", v))
		}
	case *array.BinaryBuilder:
		switch v := val.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			b.AppendNull()
		}
	case *array.Date32Builder:
		switch v := val.(type) {
		case time.Time:
			b.Append(arrow.Date32FromTime(v))
		default:
			b.AppendNull()
		}
	case *array.TimestampBuilder:
		switch v := val.(type) {
		case time.Time:
			b.Append(arrow.Timestamp(v.UnixMicro()))
		case int64:
			b.Append(arrow.Timestamp(v))
		default:
			b.AppendNull()
		}
	default:
		builder.AppendNull()
	}
}

// Narrowing conversions null out-of-range values instead of truncating.

func appendInt32InRange(b *array.Int32Builder, v int64) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		b.AppendNull()
		return
	}
	b.Append(int32(v))
}

func appendInt16InRange(b *array.Int16Builder, v int64) {
	if v < math.MinInt16 || v > math.MaxInt16 {
		b.AppendNull()
		return
	}
	b.Append(int16(v))
}

func appendInt8InRange(b *array.Int8Builder, v int64) {
	if v < math.MinInt8 || v > math.MaxInt8 {
		b.AppendNull()
		return
	}
	b.Append(int8(v))
}
