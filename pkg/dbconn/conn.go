// Package dbconn defines the capability surface that database connection
// adapters expose to the columnar query layer: synchronous metadata and
// execution primitives, and an asynchronous, backpressured stream of Arrow
// record batches for query results.
package dbconn

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Conn is a logical connection to a database engine. Concrete adapters
// advertise their capabilities through accessor methods: a capability that
// the adapter does not support yields nil. Callers pick the capability they
// need instead of inspecting the concrete type.
type Conn interface {
	// AsSync returns the synchronous capability surface of this connection,
	// or nil if the adapter does not execute synchronously.
	AsSync() SyncConn

	// Close releases the underlying session.
	Close() error
}

// SyncConn is the capability surface of an adapter whose native handle runs
// statements synchronously on the calling goroutine. The handle is owned by a
// single goroutine at a time; implementations must never share it across
// goroutines. Streaming results are off-loaded to a dedicated worker by the
// adapter itself (see QueryStream).
type SyncConn interface {
	// Schemas lists the user-visible schema names, excluding system and
	// information schemas.
	Schemas(ctx context.Context) ([]string, error)

	// Tables lists the base-table names within the given schema.
	Tables(ctx context.Context, schema string) ([]string, error)

	// GetSchema resolves the Arrow schema of a table or table-function
	// reference, reconciled under the connection's unsupported-type policy.
	GetSchema(ctx context.Context, ref TableReference) (*arrow.Schema, error)

	// Execute runs a statement expected to return a row-modification count.
	Execute(ctx context.Context, sql string, params ...interface{}) (int64, error)

	// QueryStream runs a statement and returns its result as an
	// asynchronous batch stream. The stream's schema is resolved before any
	// row is produced.
	QueryStream(ctx context.Context, sql string, params ...interface{}) (BatchStream, error)
}
