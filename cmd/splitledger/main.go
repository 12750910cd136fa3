package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/splitledger/internal/adapters/storage/sqlite"
	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/config"
	"github.com/hylla/splitledger/internal/platform"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// ledgerRuntime is everything a ledger command needs, opened once per invocation.
type ledgerRuntime struct {
	cfg    config.Config
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
	stdout io.Writer
}

// run builds the command tree and executes args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// newRootCmd assembles the splitledger command tree.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{appName: platform.DefaultAppName, devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("SPLITLEDGER_DEV_MODE"); ok {
		flags.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("SPLITLEDGER_APP_NAME")); envApp != "" {
		flags.appName = envApp
	}

	root := &cobra.Command{
		Use:   "splitledger",
		Short: "Royalty split ledger for creative works",
		Long: `splitledger records how a work's revenue is split between rights holders.

Allocations are proposed as revisions, confirmed by invited holders, and
activated once nobody is pending. Earlier revisions stay archived for audit.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&flags.appName, "app", flags.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&flags.devMode, "dev", flags.devMode, "use dev mode paths (<app>-dev)")

	withLedger := func(command string, fn func(context.Context, *ledgerRuntime, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return runLedgerCommand(cmd.Context(), flags, command, stdout, stderr, args, fn)
		}
	}

	root.AddCommand(newPathsCmd(flags, stdout))
	root.AddCommand(newWorkCmd(withLedger))
	root.AddCommand(newAllocateCmd(withLedger, true))
	root.AddCommand(newAllocateCmd(withLedger, false))
	root.AddCommand(newConfirmCmd(withLedger))
	root.AddCommand(newInviteCmd(withLedger))
	root.AddCommand(newActivateCmd(withLedger))
	root.AddCommand(newReapCmd(withLedger))
	root.AddCommand(newSettleCmd(withLedger))
	root.AddCommand(newLockCmd(withLedger, true))
	root.AddCommand(newLockCmd(withLedger, false))
	root.AddCommand(newTransferCmd(withLedger))
	root.AddCommand(newVerifyCmd(withLedger))
	root.AddCommand(newHistoryCmd(withLedger))
	root.AddCommand(newEventsCmd(withLedger))
	return root
}

// ledgerCommand wraps a ledger command body with runtime setup.
type ledgerCommand func(command string, fn func(context.Context, *ledgerRuntime, []string) error) func(*cobra.Command, []string) error

// resolvePaths resolves platform paths from the global flags.
func resolvePaths(flags *globalFlags) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: flags.appName,
		DevMode: flags.devMode,
	})
}

// runLedgerCommand loads config, opens storage and runs fn with a wired service.
func runLedgerCommand(ctx context.Context, flags *globalFlags, command string, stdout, stderr io.Writer, args []string, fn func(context.Context, *ledgerRuntime, []string) error) error {
	paths, err := resolvePaths(flags)
	if err != nil {
		return err
	}

	configPath := flags.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("SPLITLEDGER_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbPath := strings.TrimSpace(flags.dbPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(loggerOptions{
		stderr:      stderr,
		appName:     flags.appName,
		devMode:     flags.devMode,
		cfg:         cfg.Logging,
		fallbackDir: paths.LogDir,
		now:         time.Now,
	})
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.OpenWithOptions(cfg.Database.Path, sqlite.Options{LockWait: cfg.LockWaitDuration()})
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	var policy app.AllocationPolicy = app.AllowAllPolicy{}
	if cfg.Ledger.FreeTierPolicy {
		policy = app.FreeTierPolicy{Tiers: repo}
	}
	svc := app.NewService(repo, repo, uuid.NewString, time.Now, app.ServiceConfig{
		ExpirationWindow:  cfg.ExpirationWindow(),
		ReaperConcurrency: cfg.Ledger.ReaperConcurrency,
		IntegrityGuard:    cfg.Ledger.IntegrityGuard,
		Advances:          loggingCanceller{logger: logger},
		Publisher:         loggingPublisher{logger: logger},
		Policy:            policy,
		Logger:            logger,
	})

	logger.Info("command flow start", "command", command)
	if err := fn(ctx, &ledgerRuntime{cfg: cfg, logger: logger, repo: repo, svc: svc, stdout: stdout}, args); err != nil {
		logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	logger.Info("command flow complete", "command", command)
	return nil
}

// parseBoolEnv parses a boolean env var, reporting whether it was set.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
