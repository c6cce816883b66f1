package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"github.com/subgov/backend/internal/infrastructure/migration"
	"github.com/subgov/backend/migrations"
	"go.uber.org/zap"
)

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "", "Read migrations from this directory instead of the embedded set (required for create and list)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	defer func() { _ = log.Sync() }()

	switch command {
	case "create":
		if dir == "" || len(args) < 2 {
			log.Fatal("Usage: migrate -path <dir> create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		f, err := migration.Create(dir, args[1], description, time.Now())
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created",
			zap.Uint("version", f.Version),
			zap.String("up_file", f.UpPath),
			zap.String("down_file", f.DownPath))
		return
	case "list":
		if dir == "" {
			log.Fatal("Usage: migrate -path <dir> list")
		}
		versions, err := migration.Versions(dir)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Database.Driver == "sqlite" {
		log.Fatal("SQL migrations target postgres; the sqlite development mode builds its schema on startup")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	var m *migration.Migrator
	if dir != "" {
		m, err = migration.NewFromDir(db, dir, log)
	} else {
		m, err = migration.NewEmbedded(db, migrations.FS, log)
	}
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	if err := run(m, command, args[1:], log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func run(m *migration.Migrator, command string, args []string, log *zap.Logger) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	case "goto":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate goto <version>")
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	case "version":
		st, err := m.Status()
		if err != nil {
			return err
		}
		log.Info("Current migration version", zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty))
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`Subscription governance schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the applied version
  force <version>       Record a version without running it (repairs a dirty state)
  create <name> [desc]  Write the next numbered migration pair (needs -path)
  list                  List migration versions found in -path

Flags:
  -path string          Migrations directory; the embedded set is used when empty
  -log-level string     debug, info, warn or error (default: info)

Database settings come from config.toml and SUBGOV_DATABASE_* variables.`)
}
