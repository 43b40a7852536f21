// Command migrate manages the ingestion database schema.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
	"github.com/erp/marketplace-ingest/internal/infrastructure/migration"
	"github.com/erp/marketplace-ingest/migrations"
)

const defaultMigrationsDir = "migrations"

// schemaCommand runs against an open migrator
type schemaCommand struct {
	usage string
	nargs int
	run   func(m *migration.Migrator, log *zap.Logger, args []string) error
}

var schemaCommands = map[string]schemaCommand{
	"up": {"up", 0, func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
		return m.Up()
	}},
	"down": {"down", 0, func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
		return m.Down()
	}},
	"step": {"step <n>", 1, func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"goto": {"goto <version>", 1, func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	}},
	"version": {"version", 0, func(m *migration.Migrator, log *zap.Logger, _ []string) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if v == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
	"force": {"force <version>", 1, func(m *migration.Migrator, log *zap.Logger, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		log.Warn("Forcing migration version, the schema is not checked", zap.Int("version", v))
		return m.Force(v)
	}},
}

func main() {
	migrationsPath := flag.String("path", "", "Migrations directory (default: the migrations built into the binary)")
	configPath := flag.String("config", "", "Path to config file (default: ./config.toml or /app/config.toml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run(args[0], args[1:], *migrationsPath, *configPath, log)
	logger.Sync(log)
	if err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func run(command string, args []string, migrationsPath, configPath string, log *zap.Logger) error {
	switch command {
	case "create":
		return create(args, migrationsPath, log)
	case "list":
		source, _, err := migrationSource(migrationsPath)
		if err != nil {
			return err
		}
		return list(source)
	}

	cmd, ok := schemaCommands[command]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
	if len(args) < cmd.nargs {
		return fmt.Errorf("usage: migrate %s", cmd.usage)
	}

	source, sourceName, err := migrationSource(migrationsPath)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	db, err := open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migration.NewFromFS(db, source, log)
	if err != nil {
		return err
	}
	defer m.Close()

	log.Info("Running migration command",
		zap.String("command", command),
		zap.String("source", sourceName),
		zap.String("database", cfg.Database.DBName),
	)
	return cmd.run(m, log, args)
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// create writes a new up/down pair; it never touches the database
func create(args []string, dir string, log *zap.Logger) error {
	if len(args) < 1 {
		return errors.New("usage: migrate create <name> [description]")
	}
	if dir == "" {
		dir = defaultMigrationsDir
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func list(source fs.FS) error {
	infos, err := migration.ListMigrations(source)
	if err != nil {
		return err
	}
	for _, m := range infos {
		down := ""
		if !m.HasDown {
			down = " (no down)"
		}
		fmt.Printf("%d_%s%s\n", m.Version, m.Name, down)
	}
	return nil
}

// migrationSource returns the directory named by -path, or the embedded
// migrations when no path is given
func migrationSource(path string) (fs.FS, string, error) {
	if path == "" {
		return migrations.FS, "embedded", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, "", fmt.Errorf("migrations directory: %w", err)
	}
	return os.DirFS(abs), abs, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Marketplace ingest schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Set the version without running migrations (clears dirty)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: built into the binary)
  -config string        Config file (default: ./config.toml or /app/config.toml)
  -log-level string     Log level: debug, info, warn, error (default: info)

The database comes from the config file or INGEST_DATABASE_HOST,
INGEST_DATABASE_PORT, INGEST_DATABASE_USER, INGEST_DATABASE_PASSWORD,
INGEST_DATABASE_DBNAME and INGEST_DATABASE_SSLMODE.`)
}
