package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"yieldledger/config"
	"yieldledger/integrations/exports"
	"yieldledger/native/accrual"
)

func newShowCmd(flags *globalFlags) *cobra.Command {
	var settle bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print ledger state",
		Long: `show prints committed state as of the watermark. Yield for the hour in
progress, and for completed hours nobody has settled yet, is not included
unless --settle runs a settlement first.`,
	}
	show.PersistentFlags().BoolVar(&settle, "settle", false, "settle completed hours before reading")
	read := func(cmd *cobra.Command, fn func(ctx context.Context, n *node) error) error {
		return flags.withNode(cmd, func(ctx context.Context, n *node) error {
			if settle {
				if _, err := n.engine.Settle(ctx); err != nil && !errors.Is(err, accrual.ErrSaleNotStarted) {
					return err
				}
			}
			return fn(ctx, n)
		})
	}
	show.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Totals, watermark and sale clock",
			RunE: func(cmd *cobra.Command, args []string) error {
				return read(cmd, func(_ context.Context, n *node) error {
					totals, err := n.engine.Totals()
					if err != nil {
						return err
					}
					watermark, err := n.engine.Watermark()
					if err != nil {
						return err
					}
					out := map[string]any{
						"totals":    totals,
						"watermark": watermark,
						"yieldDust": totals.YieldDust(),
					}
					if hour, err := n.engine.CurrentHour(); err == nil {
						out["currentHour"] = hour
					} else if !errors.Is(err, accrual.ErrSaleNotStarted) {
						return err
					}
					return printJSON(cmd.OutOrStdout(), out)
				})
			},
		},
		&cobra.Command{
			Use:   "claim <claim-id>",
			Short: "One claim and its accrued yield",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return read(cmd, func(_ context.Context, n *node) error {
					view, err := n.engine.Claim(id)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), view)
				})
			},
		},
		&cobra.Command{
			Use:   "claims",
			Short: "Every live claim",
			RunE: func(cmd *cobra.Command, args []string) error {
				return read(cmd, func(_ context.Context, n *node) error {
					views, err := n.engine.Claims()
					if err != nil {
						return err
					}
					if views == nil {
						views = []*accrual.ClaimView{}
					}
					return printJSON(cmd.OutOrStdout(), views)
				})
			},
		},
		&cobra.Command{
			Use:   "mint <hour>",
			Short: "Cumulative principal active during an hour",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hour, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid hour %q", args[0])
				}
				return read(cmd, func(_ context.Context, n *node) error {
					cumulative, err := n.engine.MintedAt(hour)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]uint64{"hour": hour, "cumulative": cumulative})
				})
			},
		},
		&cobra.Command{
			Use:   "vesting",
			Short: "Reserve vesting schedule",
			RunE: func(cmd *cobra.Command, args []string) error {
				return read(cmd, func(_ context.Context, n *node) error {
					schedule, err := n.engine.VestingSchedule()
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), schedule)
				})
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Recompute the supply invariant from a full scan",
			RunE: func(cmd *cobra.Command, args []string) error {
				return read(cmd, func(_ context.Context, n *node) error {
					if err := n.engine.CheckSupply(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "supply ok")
					return nil
				})
			},
		},
	)
	return show
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a ledger snapshot for reporting",
	}
	export.PersistentFlags().StringVar(&out, "out", "", "output file (default stdout for csv and jsonl)")

	textExport := func(use, short string, render func(*accrual.Snapshot) ([]byte, string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return flags.withNode(cmd, func(_ context.Context, n *node) error {
					snap, err := n.engine.Snapshot()
					if err != nil {
						return err
					}
					data, checksum, err := render(snap)
					if err != nil {
						return err
					}
					if out == "" {
						_, err = cmd.OutOrStdout().Write(data)
						return err
					}
					if err := os.WriteFile(out, data, 0o644); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s sha256=%s\n", out, checksum)
					return nil
				})
			},
		}
	}

	export.AddCommand(
		textExport("csv", "Live claims as CSV", exports.ClaimsCSV),
		textExport("jsonl", "Live claims as JSON Lines", exports.ClaimsJSONL),
		textExport("mint-csv", "Cumulative mint index as CSV", exports.MintCSV),
		&cobra.Command{
			Use:   "sqlite",
			Short: "Append a full snapshot to a SQLite reporting database",
			RunE: func(cmd *cobra.Command, args []string) error {
				if out == "" {
					return errors.New("--out is required for sqlite exports")
				}
				return flags.withNode(cmd, func(ctx context.Context, n *node) error {
					snap, err := n.engine.Snapshot()
					if err != nil {
						return err
					}
					id, err := exports.SQLiteSnapshot(ctx, out, snap)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"snapshot": id, "claims": len(snap.Claims), "watermark": snap.Watermark})
				})
			},
		},
	)
	return export
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the node configuration",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			raw, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	})
	return cfgCmd
}
