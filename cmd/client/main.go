package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iudanet/localsync/internal/cli"
	"github.com/iudanet/localsync/internal/crdt"
	"github.com/iudanet/localsync/internal/data"
	"github.com/iudanet/localsync/internal/resolver"
	"github.com/iudanet/localsync/internal/store/boltdb"
	"github.com/iudanet/localsync/internal/syncer"
	"github.com/iudanet/localsync/internal/transport"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Sync endpoint URL")
	dbPath := flag.String("db", "localsync.db", "Path to local database")
	collections := flag.String("collections", "notes", "Comma-separated collections to sync")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Открываем локальное хранилище
	storage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Восстанавливаем идентификатор устройства и логические часы
	nodeID, err := storage.NodeID(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load node id: %v\n", err)
		os.Exit(1)
	}
	clockState, err := storage.ClockState(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load clock state: %v\n", err)
		os.Exit(1)
	}
	clock := crdt.NewClockWithNodeID(nodeID)
	clock.Restore(clockState)

	dataService := data.NewService(storage, clock, logger)
	merger := resolver.New(resolver.DefaultRules(), logger)
	httpTransport := transport.NewHTTP(*serverURL)
	syncService := syncer.NewService(storage, httpTransport, merger, clock, logger,
		syncer.DefaultConfig(strings.Split(*collections, ",")...))

	c := cli.New(dataService, syncService, storage, clock, os.Stdout)

	if err := dispatch(ctx, c, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, c *cli.Cli, command string, args []string) error {
	switch command {
	case "set":
		return c.RunSet(ctx, args)
	case "get":
		return c.RunGet(ctx, args)
	case "list":
		return c.RunList(ctx, args)
	case "delete":
		return c.RunDelete(ctx, args)
	case "incr":
		return c.RunIncr(ctx, args)
	case "decr":
		return c.RunDecr(ctx, args)
	case "bump":
		return c.RunBump(ctx, args)
	case "tag":
		return c.RunTag(ctx, args)
	case "untag":
		return c.RunUntag(ctx, args)
	case "sync":
		return c.RunSync(ctx)
	case "status":
		return c.RunStatus(ctx)
	case "conflicts":
		return c.RunConflicts(ctx)
	case "resolve":
		return c.RunResolve(ctx, args)
	default:
		cli.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printVersion() {
	fmt.Printf("LocalSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
