// Command inventoryd polls network printers through the GLPI agent, checks
// each report against the stored device identity and records page counters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"
	"github.com/hlebuschek/printer-inventory-django-sub001/common/logger"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/poller"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var serverLogger *logger.Logger

var (
	flagConfig   string
	flagLogLevel string
)

// loadRuntimeConfig loads .env, then the TOML file (explicit path or the
// first one found in the search paths), then env overrides, and sets up
// logging.
func loadRuntimeConfig(path string, isService bool) (*Config, error) {
	envPath, envErr := config.LoadDotEnv()

	if path == "" {
		if found, _, err := config.FindConfigFile("config.toml"); err == nil {
			path = found
		}
	}
	cfg, tracker, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if err := setupLogging(cfg, isService); err != nil {
		return nil, err
	}

	if envPath != "" {
		logInfo("Loaded environment file", "path", envPath)
	} else if envErr != nil {
		logWarn("Failed to load environment file", "error", envErr)
	}
	if path != "" {
		logInfo("Loaded configuration", "path", path)
	}
	if keys := tracker.Keys(); len(keys) > 0 {
		logDebug("Configuration overridden by environment", "keys", keys)
	}
	return cfg, nil
}

func setupLogging(cfg *Config, isService bool) error {
	logDir := cfg.Logging.Dir
	if logDir == "" {
		dir, err := config.GetLogDirectory(isService)
		if err != nil {
			return err
		}
		logDir = dir
	}
	serverLogger = logger.New(logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	serverLogger.SetRotationPolicy(rotationPolicy(cfg.Logging))
	storage.SetLogger(serverLogger)
	poller.SetLogger(serverLogger)
	return nil
}

func rotationPolicy(cfg config.LoggingConfig) logger.RotationPolicy {
	return logger.RotationPolicy{
		Enabled:    cfg.MaxSizeMB > 0,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxAgeDays: cfg.MaxAgeDays,
		MaxFiles:   cfg.MaxFiles,
	}
}

// openApp loads configuration and opens the store for one-shot commands.
func openApp() (*app, error) {
	cfg, err := loadRuntimeConfig(flagConfig, false)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, false)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inventoryd",
		Short:         "Printer inventory reconciliation service",
		Long:          "inventoryd polls network printers with the GLPI agent, validates each report against the stored serial number and MAC address, and records normalized page counters.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml (default: search platform paths)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level override (error, warn, info, debug, trace)")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newPollCmd(),
		newCleanupCmd(),
		newAuditCmd(),
		newConfigCmd(),
		newServiceCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket events and the poll scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig(flagConfig, false)
			if err != nil {
				return err
			}
			logInfo("Printer inventory starting", "version", Version, "commit", GitCommit,
				"go", runtime.Version(), "os", runtime.GOOS, "arch", runtime.GOARCH)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, false)
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <xml-file-or-dir> [ip]",
		Short: "Import saved GLPI inventory XML reports",
		Long:  "Processes one report or every *.xml file of a directory. The printer is found by the IP argument, an IP in the file name, or the MAC in the report.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ip := ""
			if len(args) == 2 {
				ip = args[1]
			}
			results, err := a.svc.ImportPath(cmd.Context(), args[0], ip)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(out, "%s: error: %v\n", r.Path, r.Err)
				case !r.Result.Outcome.OK():
					failed++
					fmt.Fprintf(out, "%s: %s: %s\n", r.Path, r.Result.Outcome.Status(), r.Result.Outcome.Reason)
				default:
					fmt.Fprintf(out, "%s: %s (%s, total %d)\n", r.Path, r.Result.Outcome.Status(),
						r.Result.Outcome.Rule, r.Result.Outcome.Counters.TotalPages)
				}
			}
			fmt.Fprintf(out, "Imported %d of %d reports\n", len(results)-failed, len(results))
			if failed > 0 {
				return fmt.Errorf("%d reports failed", failed)
			}
			return nil
		},
	}
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll <printer-id>",
		Short: "Poll one printer now and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid printer id %q", args[0])
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.RunInventory(cmd.Context(), id, "")
			if err != nil {
				return err
			}
			out := res.Outcome
			if !out.OK() {
				return fmt.Errorf("printer %d: %s: %s", id, out.Status(), out.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printer %d: %s (%s), total %d pages\n", id, out.Status(), out.Rule, out.Counters.TotalPages)
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var (
		keepDays    int
		archiveDays int
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Thin out old inventory history",
		Long:  "Keeps every task newer than --keep-days. Between --keep-days and --archive-days only the last successful task per printer per day is kept. Older tasks are deleted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			policy := storage.PrunePolicy{
				KeepDays:    a.cfg.Retention.KeepDays,
				ArchiveDays: a.cfg.Retention.ArchiveDays,
				DryRun:      dryRun,
			}
			if cmd.Flags().Changed("keep-days") {
				policy.KeepDays = keepDays
			}
			if cmd.Flags().Changed("archive-days") {
				policy.ArchiveDays = archiveDays
			}

			res, err := a.store.PruneTasks(cmd.Context(), policy)
			if err != nil {
				return err
			}
			verb := "Deleted"
			if dryRun {
				verb = "Would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Examined %d tasks. %s %d (%d past archive), kept %d.\n", res.Examined, verb, res.Deleted, res.Expired, res.Kept)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 30, "keep all history newer than this many days")
	cmd.Flags().IntVar(&archiveDays, "archive-days", 365, "history older than this is deleted")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	})
	return cmd
}

func newServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|run>",
		Short:     "Manage the OS service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleServiceCommand(args[0], flagConfig)
		},
	}
}

// closeLogging flushes and closes the log file, if one was opened.
func closeLogging() {
	if serverLogger == nil {
		return
	}
	if err := serverLogger.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to close log file:", err)
	}
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	closeLogging()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
