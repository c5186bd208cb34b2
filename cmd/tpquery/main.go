// Package main implements tpquery, a command-line front end for the
// table-provider connection adapters. It runs one SQL statement against a
// DuckDB or SQLite database, either as a row-count execution or as a
// streamed Arrow result, with optional auxiliary catalog attachments.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crystalxyz/datafusion-table-providers/internal/config"
	"github.com/crystalxyz/datafusion-table-providers/internal/fetch"
	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
	"github.com/crystalxyz/datafusion-table-providers/pkg/duckdbconn"
	"github.com/crystalxyz/datafusion-table-providers/pkg/pool"
	"github.com/crystalxyz/datafusion-table-providers/pkg/schemaval"
	"github.com/crystalxyz/datafusion-table-providers/pkg/sqliteconn"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		engine      string
		database    string
		catalog     string
		attach      string
		policy      string
		sqlText     string
		execOnly    bool
		listTables  string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&engine, "engine", "", "Database engine: duckdb or sqlite3")
	flag.StringVar(&database, "db", "", "Path to the primary database file (empty for in-memory)")
	flag.StringVar(&catalog, "catalog", "", "Primary catalog identifier")
	flag.StringVar(&attach, "attach", "", "Comma-separated auxiliary database files to attach read-only")
	flag.StringVar(&policy, "policy", "", "Unsupported-type policy: fail, warn, or ignore")
	flag.StringVar(&sqlText, "sql", "", "SQL statement to run")
	flag.BoolVar(&execOnly, "exec", false, "Run the statement for its row-modification count instead of streaming")
	flag.StringVar(&listTables, "tables", "", "List base tables in the given schema and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tpquery - run SQL through the table-provider connection adapters\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tpquery [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tpquery --db data.duckdb --sql 'SELECT * FROM events'\n")
		fmt.Fprintf(os.Stderr, "  tpquery --db main.duckdb --attach a.duckdb,b.duckdb --sql 'SELECT * FROM t1'\n")
		fmt.Fprintf(os.Stderr, "  tpquery --engine sqlite3 --db data.db --exec --sql 'DELETE FROM logs'\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DTP_ENGINE, DTP_DATABASE, DTP_PRIMARY_CATALOG, DTP_ATTACHMENTS,\n")
		fmt.Fprintf(os.Stderr, "  DTP_UNSUPPORTED_TYPE_POLICY, DTP_POOL_*, DTP_STREAM_*\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("tpquery version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// .env is optional; missing files are fine
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(configFile, engine, database, catalog, attach, policy)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if sqlText == "" && listTables == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), logger, cfg, sqlText, execOnly, listTables); err != nil {
		logger.Fatal("tpquery failed", zap.Error(err))
	}
}

// loadConfig merges the config file, environment and command-line flags,
// with flags taking precedence.
func loadConfig(configFile, engine, database, catalog, attach, policy string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	config.LoadFromEnv(cfg)

	if engine != "" {
		cfg.Engine = config.Engine(engine)
	}
	if database != "" {
		cfg.Database = database
	}
	if catalog != "" {
		cfg.PrimaryCatalog = catalog
	}
	if attach != "" {
		cfg.Attachments = strings.Split(attach, ",")
	}
	if policy != "" {
		cfg.UnsupportedTypePolicy = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, sqlText string, execOnly bool, listTables string) error {
	poolCfg := pool.Config{
		Driver:               string(cfg.Engine),
		DSN:                  cfg.Database,
		MaxSessions:          cfg.Pool.MaxSessions,
		MaxIdleSessions:      cfg.Pool.MaxIdleSessions,
		SessionMaxLifetime:   cfg.Pool.SessionMaxLifetime,
		MaxConcurrentStreams: cfg.Pool.MaxConcurrentStreams,
	}
	if cfg.Engine == config.EngineDuckDB && poolCfg.DSN == "" {
		poolCfg.DSN = ":memory:"
	}

	// s3:// attachment locations are downloaded before anything attaches
	if len(cfg.Attachments) > 0 {
		fetcher := fetch.New(fetch.Config{}, logger)
		resolved, err := fetcher.Resolve(ctx, cfg.Attachments)
		if err != nil {
			return err
		}
		cfg.Attachments = resolved
	}

	p, err := pool.New(poolCfg)
	if err != nil {
		return err
	}
	defer p.Close()

	sess, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	conn, err := buildConn(cfg, sess, logger)
	if err != nil {
		sess.Close()
		return err
	}
	defer conn.Close()

	sync := conn.AsSync()

	if listTables != "" {
		tables, err := sync.Tables(ctx, listTables)
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Println(t)
		}
		return nil
	}

	if execOnly {
		affected, err := sync.Execute(ctx, sqlText)
		if err != nil {
			return err
		}
		fmt.Printf("%d rows affected\n", affected)
		return nil
	}

	stream, err := sync.QueryStream(ctx, sqlText)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println(stream.Schema())

	var rowsTotal int64
	for {
		rec, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Println(rec)
		rowsTotal += rec.NumRows()
		rec.Release()
	}
	logger.Info("query complete", zap.Int64("rows", rowsTotal))
	return nil
}

// buildConn picks the adapter for the configured engine.
func buildConn(cfg *config.Config, sess *pool.Session, logger *zap.Logger) (dbconn.Conn, error) {
	pol, err := schemaval.ParsePolicy(cfg.UnsupportedTypePolicy)
	if err != nil {
		return nil, err
	}

	switch cfg.Engine {
	case config.EngineDuckDB:
		opts := []duckdbconn.Option{
			duckdbconn.WithLogger(logger),
			duckdbconn.WithPolicy(pol),
			duckdbconn.WithBatchSize(cfg.Stream.BatchSize),
			duckdbconn.WithStreamCapacity(cfg.Stream.ChannelCapacity),
		}
		if len(cfg.Attachments) > 0 {
			opts = append(opts, duckdbconn.WithAttachments(
				duckdbconn.NewAttachments(cfg.PrimaryCatalog, cfg.Attachments)))
		}
		return duckdbconn.New(sess, opts...), nil
	case config.EngineSQLite:
		return sqliteconn.New(sess,
			sqliteconn.WithLogger(logger),
			sqliteconn.WithPolicy(pol),
			sqliteconn.WithBatchSize(cfg.Stream.BatchSize),
			sqliteconn.WithStreamCapacity(cfg.Stream.ChannelCapacity),
		), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}
