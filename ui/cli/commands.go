// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/regvault/internal/core"
	"github.com/toeirei/regvault/internal/i18n"
	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/tasks"
)

// now is replaced in tests.
var now = time.Now

// storeRegion is the region used for the snapshot bucket client.
func storeRegion() string {
	if appConfig.SourceRegion != "" {
		return appConfig.SourceRegion
	}
	return appConfig.RestoreRegion
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the registry of the source region into a new snapshot",
		Long: `Export describes every thing, certificate, policy, thing type, thing group
and provisioning template of the source region and writes them, together
with their attachments, below the run prefix. The prefix defaults to the
current UTC date (YYYY/MM/DD).`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	cmd.Flags().String("source-region", "", "Region to export from (BACKUP_REGION)")
	cmd.Flags().Int("max-workers", 0, "Concurrent items per kind (default 1)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if appConfig.SourceRegion == "" {
		return missing("source_region")
	}
	prefix := appConfig.Prefix
	if prefix == "" {
		prefix = model.DatePrefix(now())
	}
	log := commandLogger(cmd)

	reg, err := openRegistry(ctx, appConfig, appConfig.SourceRegion)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, appConfig, storeRegion(), prefix)
	if err != nil {
		return err
	}
	defer closeStore()

	return withJournal(ctx, func(j core.RunJournal) error {
		return core.Journaled(ctx, j, log, "export", prefix, appConfig.SourceRegion, func(ctx context.Context) (string, error) {
			report, err := core.NewExporter(reg, store, core.ExportOptions{
				MaxWorkers: appConfig.MaxWorkers,
				Logger:     log,
			}).Export(ctx)
			if err != nil {
				var be *tasks.BatchError[struct{}]
				if errors.As(err, &be) {
					log.Error(i18n.T("export.failed", len(be.Failures), be.Total))
				}
				return core.ExportState(err), err
			}
			total := 0
			for _, n := range report.Counts {
				total += n
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("export.done", total, store.Location(), report.Duration.Round(time.Millisecond)))
			return core.ExportState(nil), nil
		})
	})
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a snapshot into the restore region",
		Long: `Restore replays the snapshot below the run prefix into the restore region.
Resources are created first; attachments and group memberships follow only
once every resource exists. Existing resources are kept, so a failed
restore can simply be run again.`,
		Args: cobra.NoArgs,
		RunE: runRestore,
	}
	cmd.Flags().String("restore-region", "", "Region to restore into (RESTORE_REGION)")
	cmd.Flags().String("source-region", "", "Region of the snapshot bucket (BACKUP_REGION)")
	cmd.Flags().Int("max-workers", 0, "Concurrent items per kind (0 = unbounded)")
	return cmd
}

// restoreTarget validates the settings shared by restore and restore-thing.
func restoreTarget() (region, prefix string, err error) {
	if appConfig.RestoreRegion == "" {
		return "", "", missing("restore_region")
	}
	if appConfig.Prefix == "" {
		return "", "", missing("prefix")
	}
	return appConfig.RestoreRegion, appConfig.Prefix, nil
}

func newRestorer(ctx context.Context, cmd *cobra.Command, j core.RunJournal, region, prefix string) (*core.Restorer, func() error, error) {
	reg, err := openRegistry(ctx, appConfig, region)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx, appConfig, storeRegion(), prefix)
	if err != nil {
		return nil, nil, err
	}
	var audit core.AuditWriter
	if j != nil {
		audit = j
	}
	return core.NewRestorer(reg, store, core.RestoreOptions{
		MaxWorkers: appConfig.MaxWorkers,
		Rewriter:   registry.NewRegionRewriter(region, appConfig.KnownRegions),
		Audit:      audit,
		Logger:     commandLogger(cmd),
	}), closeStore, nil
}

func runRestore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	region, prefix, err := restoreTarget()
	if err != nil {
		return err
	}
	log := commandLogger(cmd)
	start := now()

	return withJournal(ctx, func(j core.RunJournal) error {
		r, closeStore, err := newRestorer(ctx, cmd, j, region, prefix)
		if err != nil {
			return err
		}
		defer closeStore()

		return core.Journaled(ctx, j, log, "restore", prefix, region, func(ctx context.Context) (string, error) {
			if err := r.Restore(ctx); err != nil {
				log.Error(i18n.T("restore.failed", r.State()))
				return r.State().String(), err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("restore.done", prefix, region, time.Since(start).Round(time.Millisecond)))
			return r.State().String(), nil
		})
	})
}

func newRestoreThingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore-thing [name]",
		Short: "Restore a single thing and its dependencies",
		Long: `Restore-thing restores one thing from the snapshot together with its thing
type, certificates, policies and thing groups. It refuses to touch a thing
that already exists in the restore region.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRestoreThing,
	}
	cmd.Flags().String("restore-region", "", "Region to restore into (RESTORE_REGION)")
	cmd.Flags().String("source-region", "", "Region of the snapshot bucket (BACKUP_REGION)")
	cmd.Flags().String("thing-name", "", "Thing to restore (THING_NAME)")
	return cmd
}

func runRestoreThing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := appConfig.ThingName
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return missing("thing_name")
	}
	region, prefix, err := restoreTarget()
	if err != nil {
		return err
	}
	log := commandLogger(cmd).With("thing", name)

	return withJournal(ctx, func(j core.RunJournal) error {
		r, closeStore, err := newRestorer(ctx, cmd, j, region, prefix)
		if err != nil {
			return err
		}
		defer closeStore()

		return core.Journaled(ctx, j, log, "restore-thing", prefix, region, func(ctx context.Context) (string, error) {
			if err := r.RestoreThing(ctx, name); err != nil {
				if core.IsPrecondition(err) {
					log.Warn("nothing was changed")
				}
				return core.RunFailed, err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("restore_thing.done", name, region))
			return core.RunSucceeded, nil
		})
	})
}
