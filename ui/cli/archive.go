// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toeirei/regvault/internal/core"
	"github.com/toeirei/regvault/internal/i18n"
)

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <file>",
		Short: "Pack a snapshot into a single compressed file",
		Long: `Archive downloads every document below the run prefix and writes them
into one Zstandard-compressed bundle. Use unarchive to upload the bundle to
another bucket, store or prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if appConfig.Prefix == "" {
				return missing("prefix")
			}
			store, closeStore, err := openStore(ctx, appConfig, storeRegion(), appConfig.Prefix)
			if err != nil {
				return err
			}
			defer closeStore()

			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create archive file: %w", err)
			}
			bundle, err := core.Archive(ctx, store, f)
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("failed to close archive file: %w", cerr)
			}
			if err != nil {
				// Don't leave a truncated archive behind.
				_ = os.Remove(args[0])
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("archive.done", len(bundle.Documents), store.Location(), args[0]))
			return nil
		},
	}
}

func newUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <file>",
		Short: "Upload an archived snapshot into the configured store",
		Long: `Unarchive uploads every document of a bundle written by archive. The
documents land below --prefix, or below the prefix they were archived from
when no prefix is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read archive file: %w", err)
			}
			prefix := appConfig.Prefix
			if prefix == "" {
				bundle, err := core.ReadArchive(bytes.NewReader(data))
				if err != nil {
					return err
				}
				prefix = bundle.Prefix
			}
			store, closeStore, err := openStore(ctx, appConfig, storeRegion(), prefix)
			if err != nil {
				return err
			}
			defer closeStore()

			return withJournal(ctx, func(j core.RunJournal) error {
				return core.Journaled(ctx, j, commandLogger(cmd), "unarchive", prefix, "", func(ctx context.Context) (string, error) {
					bundle, err := core.Unarchive(ctx, bytes.NewReader(data), store)
					if err != nil {
						return core.RunFailed, err
					}
					fmt.Fprintln(cmd.OutOrStdout(), i18n.T("unarchive.done", len(bundle.Documents), store.Location()))
					return core.RunSucceeded, nil
				})
			})
		},
	}
}
