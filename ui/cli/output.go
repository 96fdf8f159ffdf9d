// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toeirei/regvault/internal/config"
	"github.com/toeirei/regvault/internal/core"
	"github.com/toeirei/regvault/internal/i18n"
	"github.com/toeirei/regvault/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the snapshot below the run prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if appConfig.Prefix == "" {
				return missing("prefix")
			}
			format, _ := cmd.Flags().GetString("output")
			store, closeStore, err := openStore(ctx, appConfig, storeRegion(), appConfig.Prefix)
			if err != nil {
				return err
			}
			defer closeStore()

			summary, err := core.Inspect(ctx, store)
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), summary, format)
		},
	}
	cmd.Flags().StringP("output", "o", "table", "Output format (table, yaml, json)")
	return cmd
}

func writeSummary(w io.Writer, s *model.SnapshotSummary, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "", "table":
		t := newTable(i18n.T("inspect.kind"), i18n.T("inspect.count"))
		for _, kind := range model.Kinds {
			t.Row(string(kind), strconv.Itoa(s.Counts[kind]))
		}
		fmt.Fprintln(w, titleStyle.Render(i18n.T("inspect.title", s.Prefix)))
		fmt.Fprintln(w, t.Render())
		fmt.Fprintln(w, i18n.T("inspect.principal_assignments", s.PrincipalAssignments))
		fmt.Fprintln(w, i18n.T("inspect.policy_assignments", s.PolicyAssignments))
		fmt.Fprintln(w, i18n.T("inspect.root_groups", strings.Join(s.RootGroups, ", ")))
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			j, err := openJournal(ctx, appConfig)
			if err != nil {
				return err
			}
			if j == nil {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("history.empty"))
				return nil
			}
			defer j.Close()

			runs, err := j.History(ctx, limit)
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of runs to show (0 = all)")
	return cmd
}

func writeHistory(w io.Writer, runs []model.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, i18n.T("history.empty"))
		return
	}
	t := newTable(
		i18n.T("history.run"),
		i18n.T("history.command"),
		i18n.T("history.prefix"),
		i18n.T("history.region"),
		i18n.T("history.state"),
		i18n.T("history.started"),
		i18n.T("history.duration"),
	)
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		t.Row(shortID(r.ID), r.Command, r.Prefix, r.Region, r.State, r.StartedAt.Local().Format(time.DateTime), duration)
	}
	fmt.Fprintln(w, t.Render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			system, _ := cmd.Flags().GetBool("system")
			path, err := config.GetConfigPath(system)
			if err != nil {
				return err
			}
			if err := config.WriteConfigFileTo(&appConfig, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", path))
			return nil
		},
	}
	initCmd.Flags().Bool("system", false, "Write the system-wide config file")
	cmd.AddCommand(initCmd)
	return cmd
}
