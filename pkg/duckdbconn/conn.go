// Package duckdbconn adapts DuckDB sessions to the dbconn capability
// surface. DuckDB's native handle is synchronous and single-owner, so
// streaming results are bridged onto a dedicated worker goroutine and
// relayed to the consumer through a bounded channel; metadata and row-count
// statements run directly on the caller's session, which is acceptable
// because they are short.
package duckdbconn

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/crystalxyz/datafusion-table-providers/pkg/arrowconv"
	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
	"github.com/crystalxyz/datafusion-table-providers/pkg/pool"
	"github.com/crystalxyz/datafusion-table-providers/pkg/schemaval"
)

// Conn is a DuckDB-backed connection adapter. It composes the attachment
// manager, the schema reconciler, the table-reference classifier and the
// sync-to-async bridge behind the dbconn.SyncConn surface.
type Conn struct {
	sess        *pool.Session
	attachments *Attachments
	reconciler  *schemaval.Reconciler
	logger      *zap.Logger
	alloc       memory.Allocator
	batchSize   int
	streamCap   int
}

// Option configures a Conn.
type Option func(*Conn)

// WithAttachments makes a set of auxiliary database files visible to every
// operation on the connection.
func WithAttachments(a *Attachments) Option {
	return func(c *Conn) { c.attachments = a }
}

// WithPolicy sets the unsupported-type policy applied when resolving table
// schemas (default: fail).
func WithPolicy(p schemaval.Policy) Option {
	return func(c *Conn) {
		c.reconciler = schemaval.New(p, arrowconv.DuckDBAccepts, c.logger)
	}
}

// WithLogger sets the structured logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
		c.reconciler = schemaval.New(c.reconciler.Policy(), arrowconv.DuckDBAccepts, logger)
	}
}

// WithBatchSize sets the number of rows per streamed record batch.
func WithBatchSize(n int) Option {
	return func(c *Conn) { c.batchSize = n }
}

// WithStreamCapacity sets the bound on the streaming relay channel.
func WithStreamCapacity(n int) Option {
	return func(c *Conn) { c.streamCap = n }
}

// WithAllocator sets the Arrow memory allocator used when building batches.
func WithAllocator(alloc memory.Allocator) Option {
	return func(c *Conn) { c.alloc = alloc }
}

// New builds a DuckDB connection adapter around a checked-out session. The
// adapter owns the session: Close returns it.
func New(sess *pool.Session, opts ...Option) *Conn {
	c := &Conn{
		sess:      sess,
		logger:    zap.NewNop(),
		alloc:     memory.DefaultAllocator,
		batchSize: arrowconv.DefaultBatchSize,
		streamCap: dbconn.DefaultStreamCapacity,
	}
	c.reconciler = schemaval.New(schemaval.PolicyFail, arrowconv.DuckDBAccepts, c.logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AsSync returns the synchronous capability surface.
func (c *Conn) AsSync() dbconn.SyncConn {
	return c
}

// Close returns the underlying session to its pool.
func (c *Conn) Close() error {
	return c.sess.Close()
}

// attach is a passthrough when no attachment set is configured.
func (c *Conn) attach(ctx context.Context) error {
	if c.attachments == nil {
		return nil
	}
	return c.attachments.Attach(ctx, c.sess.Raw(), c.logger)
}

// detach is a passthrough when no attachment set is configured.
func (c *Conn) detach(ctx context.Context) error {
	if c.attachments == nil {
		return nil
	}
	return c.attachments.Detach(ctx, c.sess.Raw())
}

// withAttachments brackets fn between attach and detach. Detach runs even
// when fn fails; a detach failure only surfaces when fn itself succeeded.
func (c *Conn) withAttachments(ctx context.Context, fn func() error) error {
	if err := c.attach(ctx); err != nil {
		return err
	}
	err := fn()
	if derr := c.detach(ctx); derr != nil && err == nil {
		err = derr
	}
	return err
}

// Schemas lists the user-visible schema names, excluding system and
// information schemas.
func (c *Conn) Schemas(ctx context.Context) ([]string, error) {
	const sql = `SELECT DISTINCT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog')`

	var schemas []string
	err := c.withAttachments(ctx, func() error {
		rows, err := c.sess.Raw().QueryContext(ctx, sql)
		if err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"unable to list schemas", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
					"unable to list schemas", err)
			}
			schemas = append(schemas, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return schemas, nil
}

// Tables lists the base-table names within the given schema.
func (c *Conn) Tables(ctx context.Context, schema string) ([]string, error) {
	const sql = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'`

	var tables []string
	err := c.withAttachments(ctx, func() error {
		rows, err := c.sess.Raw().QueryContext(ctx, sql, schema)
		if err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"unable to list tables", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
					"unable to list tables", err)
			}
			tables = append(tables, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// GetSchema resolves the Arrow schema of a table or table-function
// reference, reconciled under the connection's unsupported-type policy.
// Function calls keep their surface syntax; plain references are quoted.
func (c *Conn) GetSchema(ctx context.Context, ref dbconn.TableReference) (*arrow.Schema, error) {
	tableStr := ref.QuotedString()
	if IsTableFunction(ref) {
		tableStr = ref.String()
	}

	var schema *arrow.Schema
	err := c.withAttachments(ctx, func() error {
		probed, err := probeSchema(ctx, c.sess, fmt.Sprintf("SELECT * FROM %s LIMIT 0", tableStr))
		if err != nil {
			return err
		}
		schema = probed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.reconciler.Reconcile(schema)
}

// Execute runs a statement expected to return a row-modification count.
func (c *Conn) Execute(ctx context.Context, sql string, params ...interface{}) (int64, error) {
	var affected int64
	err := c.withAttachments(ctx, func() error {
		result, err := c.sess.Raw().ExecContext(ctx, sql, params...)
		if err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"query execution failed", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"query execution failed", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// QueryStream runs a statement and returns its result as an asynchronous,
// backpressured batch stream. The schema is resolved up front with a
// zero-row probe on the caller's session; the blocking execution then runs
// on a cloned session owned by a dedicated worker goroutine for its entire
// lifetime, so no native handle is ever touched from two goroutines.
func (c *Conn) QueryStream(ctx context.Context, sql string, params ...interface{}) (dbconn.BatchStream, error) {
	// Probe the result schema and leave the session detached before any
	// worker is spawned; probe failures abort synchronously.
	var schema *arrow.Schema
	err := c.withAttachments(ctx, func() error {
		probe := fmt.Sprintf("WITH fetch_schema AS (%s) SELECT * FROM fetch_schema LIMIT 0", sql)
		probed, err := probeSchema(ctx, c.sess, probe, params...)
		if err != nil {
			return err
		}
		schema = probed
		return nil
	})
	if err != nil {
		return nil, err
	}

	releaseSlot, err := c.sess.AcquireStreamSlot(ctx)
	if err != nil {
		return nil, err
	}

	// The clone is a fresh session: it needs its own attach, performed by
	// the worker that owns it.
	clone, err := c.sess.Clone(ctx)
	if err != nil {
		releaseSlot()
		return nil, dbconn.WrapError(dbconn.ErrCategoryConnection, dbconn.CodeCloneFailed,
			"unable to clone session for streaming", err)
	}

	attachments := c.attachments
	logger := c.logger
	alloc := c.alloc
	batchSize := c.batchSize

	produce := func(wctx context.Context, send dbconn.SendFunc) error {
		defer releaseSlot()
		clean := false
		defer func() {
			// A clone whose catalog state was not restored is discarded,
			// never returned to the pool.
			if clean {
				_ = clone.Close()
			} else {
				_ = clone.Discard()
			}
		}()

		if attachments != nil {
			if err := attachments.Attach(wctx, clone.Raw(), logger); err != nil {
				return err
			}
		}

		rows, err := clone.Raw().QueryContext(wctx, sql, params...)
		if err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"query execution failed", err)
		}
		defer rows.Close()

		for {
			rec, err := arrowconv.NextBatch(alloc, rows, schema, batchSize)
			if err != nil {
				return dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
					"query execution failed", err)
			}
			if rec == nil {
				break
			}
			if err := send(rec); err != nil {
				return err
			}
		}

		if attachments != nil {
			if err := attachments.Detach(wctx, clone.Raw()); err != nil {
				return err
			}
		}
		clean = true
		return nil
	}

	return dbconn.NewWorkerStream(ctx, schema, c.streamCap, produce), nil
}

// probeSchema runs a zero-row statement and derives the Arrow schema from
// the result's column metadata.
func probeSchema(ctx context.Context, sess *pool.Session, sql string, params ...interface{}) (*arrow.Schema, error) {
	rows, err := sess.Raw().QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve result schema", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve result schema", err)
	}
	return arrowconv.SchemaFromColumnTypes(colTypes), nil
}
