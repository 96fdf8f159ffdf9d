// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	clog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/toeirei/regvault/buildvars"
	"github.com/toeirei/regvault/internal/config"
	"github.com/toeirei/regvault/internal/db"
	"github.com/toeirei/regvault/internal/i18n"
	"github.com/toeirei/regvault/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var cfgFile string
var verbose bool

var appConfig config.Config

// logger is the command logger, replaced by setupDefaultServices.
var logger = logging.L

func setupDefaultServices(cmd *cobra.Command, _ []string) error {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}
	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	level := appConfig.Log.Level
	if verbose {
		level = "debug"
		db.SetDebug(true)
	}
	l, err := logging.Setup(level, appConfig.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l

	i18n.Init(appConfig.Language)
	return nil
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// Execute runs the CLI entrypoint. The main package should call this
// function and handle process exit.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regvault",
		Short: "Regvault backs up and restores an AWS IoT device registry.",
		Long: `Regvault exports the things, certificates, policies, thing types,
thing groups and provisioning templates of an AWS IoT registry, together
with the links between them, into an object store. A snapshot can be
replayed into the same or another region, either completely or for a
single thing.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupDefaultServices,
	}
	cmd.Version = compositeVersion()

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is regvault.yaml in the user or system config directory)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, including database logs")
	pf.String("language", "", `Output language ("en", "de")`)
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, logfmt, json)")
	applyStoreFlags(cmd)
	applyDefaultFlags(cmd)

	cmd.AddCommand(
		newExportCmd(),
		newRestoreCmd(),
		newRestoreThingCmd(),
		newArchiveCmd(),
		newUnarchiveCmd(),
		newInspectCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// applyDefaultFlags registers the journal and registry flags shared by all
// commands.
func applyDefaultFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("database-type", "", "Run journal database type (sqlite, postgres, mysql, none)")
	pf.String("database-dsn", "", "Run journal connection string (DSN)")
	pf.Float64("rate-limit", 0, "Maximum registry API calls per second (0 = unlimited)")
	pf.String("aws-endpoint", "", "Override the AWS IoT endpoint")
}

// applyStoreFlags registers the flags selecting the snapshot location.
func applyStoreFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("bucket", "", "Bucket holding the snapshots (BACKUP_BUCKET)")
	pf.String("prefix", "", "Run prefix inside the bucket, e.g. 2024/05/01 (BACKUP_DATE_PREFIX)")
	pf.String("store-type", "", "Snapshot store backend (s3, gcs, file)")
	pf.String("store-dir", "", "Root directory of the file store")
	pf.String("store-endpoint", "", "Endpoint of an S3 or GCS compatible store")
	pf.Bool("store-path-style", false, "Use path-style S3 addressing")
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, c, d := resolveBuildVersion(nil)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), i18n.T("version.line", map[string]any{
				"Version": v,
				"Commit":  c,
				"Date":    d,
			}))
			return err
		},
	}
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If `info` is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, found := debug.ReadBuildInfo(); found {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		// If Main doesn't contain the version (some build paths), try to
		// find our module in the dependencies and use that version.
		if resolvedVersion == "dev" || resolvedVersion == "(devel)" {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/regvault" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	// As a last resort, show the commit so support can identify the build.
	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

// commandLogger returns the command logger tagged with the command name.
func commandLogger(cmd *cobra.Command) *clog.Logger {
	return logger.With("cmd", cmd.Name())
}
