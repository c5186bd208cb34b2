// Package sqliteconn adapts SQLite sessions to the dbconn capability
// surface. SQLite has no catalog search path and no read-only multi-file
// attachment mechanism comparable to DuckDB's, so this adapter carries no
// attachment manager; everything else mirrors the DuckDB adapter, including
// the worker-bridged batch streaming.
package sqliteconn

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

// Conn is a SQLite-backed connection adapter.
type Conn struct {
	sess       *pool.Session
	reconciler *schemaval.Reconciler
	logger     *zap.Logger
	alloc      memory.Allocator
	batchSize  int
	streamCap  int
}

// Option configures a Conn.
type Option func(*Conn)

// WithPolicy sets the unsupported-type policy applied when resolving table
// schemas (default: fail). SQLite's dynamic typing maps to flat Arrow
// types, so the structural rule rarely rejects anything here; the policy
// still applies uniformly.
func WithPolicy(p schemaval.Policy) Option {
	return func(c *Conn) {
		c.reconciler = schemaval.New(p, nil, c.logger)
	}
}

// WithLogger sets the structured logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
		c.reconciler = schemaval.New(c.reconciler.Policy(), nil, logger)
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

// New builds a SQLite connection adapter around a checked-out session.
func New(sess *pool.Session, opts ...Option) *Conn {
	c := &Conn{
		sess:      sess,
		logger:    zap.NewNop(),
		alloc:     memory.DefaultAllocator,
		batchSize: arrowconv.DefaultBatchSize,
		streamCap: dbconn.DefaultStreamCapacity,
	}
	c.reconciler = schemaval.New(schemaval.PolicyFail, nil, c.logger)
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

// Schemas lists the databases visible on the session. SQLite exposes
// attached databases instead of schemas; the primary database is "main".
func (c *Conn) Schemas(ctx context.Context) ([]string, error) {
	rows, err := c.sess.Raw().QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
			"unable to list schemas", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var seq int
		var name, file interface{}
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"unable to list schemas", err)
		}
		if s, ok := name.(string); ok {
			schemas = append(schemas, s)
		}
	}
	return schemas, rows.Err()
}

// Tables lists the base-table names within the given database. An empty
// schema means the primary database.
func (c *Conn) Tables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = "main"
	}
	stmt := fmt.Sprintf(
		"SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%'",
		dbconn.QuoteIdentifier(schema))

	rows, err := c.sess.Raw().QueryContext(ctx, stmt)
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
			"unable to list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
				"unable to list tables", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// GetSchema resolves the Arrow schema of a table reference, reconciled
// under the connection's unsupported-type policy.
func (c *Conn) GetSchema(ctx context.Context, ref dbconn.TableReference) (*arrow.Schema, error) {
	rows, err := c.sess.Raw().QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT 0", ref.QuotedString()))
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve table schema", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve table schema", err)
	}
	return c.reconciler.Reconcile(arrowconv.SchemaFromColumnTypes(colTypes))
}

// Execute runs a statement expected to return a row-modification count.
func (c *Conn) Execute(ctx context.Context, sql string, params ...interface{}) (int64, error) {
	result, err := c.sess.Raw().ExecContext(ctx, sql, params...)
	if err != nil {
		return 0, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
			"query execution failed", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodeQueryFailed,
			"query execution failed", err)
	}
	return affected, nil
}

// QueryStream runs a statement and returns its result as an asynchronous,
// backpressured batch stream. The schema is probed on the caller's session;
// the blocking execution runs on a cloned session owned by the worker.
func (c *Conn) QueryStream(ctx context.Context, sql string, params ...interface{}) (dbconn.BatchStream, error) {
	probe := fmt.Sprintf("SELECT * FROM (%s) LIMIT 0", sql)
	rows, err := c.sess.Raw().QueryContext(ctx, probe, params...)
	if err != nil {
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve result schema", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, dbconn.WrapError(dbconn.ErrCategoryQuery, dbconn.CodePrepareFailed,
			"unable to resolve result schema", err)
	}
	rows.Close()
	schema := arrowconv.SchemaFromColumnTypes(colTypes)

	releaseSlot, err := c.sess.AcquireStreamSlot(ctx)
	if err != nil {
		return nil, err
	}

	clone, err := c.sess.Clone(ctx)
	if err != nil {
		releaseSlot()
		return nil, dbconn.WrapError(dbconn.ErrCategoryConnection, dbconn.CodeCloneFailed,
			"unable to clone session for streaming", err)
	}

	alloc := c.alloc
	batchSize := c.batchSize

	produce := func(wctx context.Context, send dbconn.SendFunc) error {
		defer releaseSlot()
		defer clone.Close()

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
				return nil
			}
			if err := send(rec); err != nil {
				return err
			}
		}
	}

	return dbconn.NewWorkerStream(ctx, schema, c.streamCap, produce), nil
}
