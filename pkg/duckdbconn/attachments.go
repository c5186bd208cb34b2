package duckdbconn

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
)

// Attachments makes a set of auxiliary DuckDB database files visible on a
// connection, read-only, under generated aliases, and rewrites the
// connection's search path so the primary catalog plus every attachment
// resolve unqualified names.
//
// The set is immutable after construction. Attach and Detach are idempotent
// and must be paired on any connection that is returned to a pool: a session
// left attached resolves names against the wrong catalog later. A cloned
// session starts from engine defaults and needs its own Attach.
type Attachments struct {
	id         string
	paths      []string
	token      string
	searchPath string
}

// NewAttachments builds an attachment set for the primary catalog id and
// the given auxiliary database-file paths. Duplicate paths collapse,
// preserving first-seen order. The per-instance random token keeps
// generated aliases unique across concurrently live attachment sets on the
// same primary catalog.
func NewAttachments(id string, paths []string) *Attachments {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	seen := make(map[string]struct{}, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	return &Attachments{
		id:         id,
		paths:      unique,
		token:      token,
		searchPath: buildSearchPath(id, token, unique),
	}
}

// buildSearchPath joins the primary catalog id with one generated alias per
// attachment. The primary catalog must be listed explicitly: the engine's
// default search path does not include the main database once overridden.
func buildSearchPath(id, token string, paths []string) string {
	parts := make([]string, 0, len(paths)+1)
	parts = append(parts, id)
	for i := range paths {
		parts = append(parts, attachmentName(token, i))
	}
	return strings.Join(parts, ",")
}

func attachmentName(token string, index int) string {
	return fmt.Sprintf("attachment_%s_%d", token, index)
}

// SearchPath returns the precomputed search path: the primary catalog id
// followed by one alias per unique attachment.
func (a *Attachments) SearchPath() string {
	return a.searchPath
}

// Paths returns the deduplicated attachment paths in attach order.
func (a *Attachments) Paths() []string {
	return a.paths
}

// Attach makes every database in the set visible on the connection and sets
// the search path. Each file is verified to exist before the engine touches
// it, so a missing file fails fast with its path. A failure part-way leaves
// nothing behind: the already attached files are detached best-effort before
// the error returns.
func (a *Attachments) Attach(ctx context.Context, conn *sql.Conn, logger *zap.Logger) error {
	for i, path := range a.paths {
		if _, err := os.Stat(path); err != nil {
			a.detachFirst(ctx, conn, i)
			return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeMissingAttachment,
				fmt.Sprintf("unable to attach DuckDB database %s", path), err).
				WithDetail("path", path)
		}

		alias := attachmentName(a.token, i)
		stmt := fmt.Sprintf("ATTACH IF NOT EXISTS '%s' AS %s (READ_ONLY)",
			strings.ReplaceAll(path, "'", "''"), alias)
		if logger != nil {
			logger.Debug("attaching database", zap.String("path", path), zap.String("alias", alias))
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			a.detachFirst(ctx, conn, i)
			return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
				fmt.Sprintf("unable to attach DuckDB database %s", path), err).
				WithDetail("path", path)
		}
	}

	if err := a.setSearchPath(ctx, conn); err != nil {
		a.detachFirst(ctx, conn, len(a.paths))
		return err
	}
	return nil
}

// detachFirst best-effort detaches the first n attachments and resets the
// search path after a failed Attach; the original error wins, so detach
// failures are swallowed.
func (a *Attachments) detachFirst(ctx context.Context, conn *sql.Conn, n int) {
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		_, _ = conn.ExecContext(ctx, "DETACH DATABASE IF EXISTS "+attachmentName(a.token, i))
	}
	_, _ = conn.ExecContext(ctx, "RESET search_path")
}

// Detach removes every attachment from the connection and resets the search
// path to the engine default.
func (a *Attachments) Detach(ctx context.Context, conn *sql.Conn) error {
	for i := range a.paths {
		alias := attachmentName(a.token, i)
		if _, err := conn.ExecContext(ctx, "DETACH DATABASE IF EXISTS "+alias); err != nil {
			return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeDetachFailed,
				fmt.Sprintf("unable to detach database %s", alias), err)
		}
	}
	return a.resetSearchPath(ctx, conn)
}

// setSearchPath applies the precomputed search path to the connection.
func (a *Attachments) setSearchPath(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path ='%s'", a.searchPath)); err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryConnection, dbconn.CodeConnectionFailed,
			"unable to set search path", err)
	}
	return nil
}

// resetSearchPath restores the engine's default search path.
func (a *Attachments) resetSearchPath(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "RESET search_path"); err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryConnection, dbconn.CodeConnectionFailed,
			"unable to reset search path", err)
	}
	return nil
}
