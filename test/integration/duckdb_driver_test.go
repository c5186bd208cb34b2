//go:build duckdb

// The DuckDB driver is cgo-based and needs a native libduckdb to link, so its
// registration is opt-in via the "duckdb" build tag.
package integration

import (
	_ "github.com/semihalev/go-duckdb"
)
