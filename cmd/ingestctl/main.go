// Command ingestctl runs ingestion and manages shop credentials from the
// command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/bootstrap"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
)

type command struct {
	name    string
	summary string
	// needsEngine commands get a database-backed engine
	needsEngine bool
	run         func(ctx context.Context, env *env, args []string) error
}

// env is what a command may use
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *bootstrap.Engine
	out    io.Writer
}

var commands = []command{
	{"run", "Run one ingestion for a shop and print the run", true, runIngest},
	{"runs", "List recent runs", true, listRuns},
	{"authorize", "Store a new one-time authorization code for a shop", true, authorize},
	{"credentials", "Print the token state of every shop", true, listCredentials},
	{"import-credentials", "Create or replace credentials from a JSON file", true, importCredentials},
	{"token", "Issue an operator token for the ops API", false, issueToken},
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.toml or /app/config.toml)")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	// stdout carries command output
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  "stderr",
		Service: "ingestctl",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	e := &env{cfg: cfg, log: log, out: os.Stdout}
	code := execute(ctx, cmd, e, args[1:])
	stop()
	logger.Sync(log)
	os.Exit(code)
}

func execute(ctx context.Context, cmd command, e *env, args []string) int {
	if cmd.needsEngine {
		engine, err := bootstrap.Build(ctx, e.cfg, e.log)
		if err != nil {
			e.log.Error("Failed to assemble ingestion engine", zap.Error(err))
			return 1
		}
		defer func() {
			if err := engine.Close(); err != nil {
				e.log.Warn("Error releasing resources", zap.Error(err))
			}
		}()
		e.engine = engine
	}

	if err := cmd.run(ctx, e, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		e.log.Error("Command failed", zap.String("command", cmd.name), zap.Error(err))
		return 1
	}
	return 0
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// printJSON writes v indented to the command output
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Marketplace ingest control

Usage:
  ingestctl [flags] <command> [command flags]

Commands:`)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, `
Flags:
  -config string        Config file (default: ./config.toml or /app/config.toml)
  -log-level string     Override the configured log level

Run "ingestctl <command> -h" for command flags.`)
}
