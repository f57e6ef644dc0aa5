package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"yieldledger/native/accrual"
)

func newStartSaleCmd(flags *globalFlags) *cobra.Command {
	var (
		start       string
		weeks       uint64
		periodHours uint64
		reserve     uint64
	)
	cmd := &cobra.Command{
		Use:   "start-sale",
		Short: "Fix hour 0 of the ledger and lay out the vesting schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				at := time.Now().UTC()
				if start != "" {
					parsed, err := time.Parse(time.RFC3339, start)
					if err != nil {
						return fmt.Errorf("--start: %w", err)
					}
					at = parsed
				}
				plan := n.cfg.Vesting.Plan()
				if cmd.Flags().Changed("weeks") {
					plan.Weeks = weeks
				}
				if cmd.Flags().Changed("period-hours") {
					plan.Period = time.Duration(periodHours) * time.Hour
				}
				if cmd.Flags().Changed("reserve") {
					plan.ReserveUnits = reserve
				}
				if err := n.engine.StartSale(ctx, at, plan); err != nil {
					return err
				}
				saleStart, err := n.engine.SaleStart()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"saleStart": saleStart, "vesting": plan})
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 sale start (default now)")
	cmd.Flags().Uint64Var(&weeks, "weeks", 0, "vesting epochs, overrides Vesting.Weeks")
	cmd.Flags().Uint64Var(&periodHours, "period-hours", 0, "hours per vesting epoch, overrides Vesting.PeriodHours")
	cmd.Flags().Uint64Var(&reserve, "reserve", 0, "reserve units to vest, overrides Vesting.ReserveUnits")
	return cmd
}

func newDepositCmd(flags *globalFlags) *cobra.Command {
	var (
		principal uint64
		backing   string
	)
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Mint a claim for principal units at the current hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := accrual.DepositRequest{Principal: principal, Backing: accrual.Zero()}
			if backing != "" {
				value, err := accrual.ParseDecimal(backing)
				if err != nil {
					return fmt.Errorf("--backing: %w", err)
				}
				req.Backing = value
			}
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				receipt, err := n.engine.Deposit(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	cmd.Flags().Uint64Var(&principal, "principal", 0, "principal units to mint")
	cmd.Flags().StringVar(&backing, "backing", "", "decimal amount contributed to the reserve pool")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func newSplitCmd(flags *globalFlags) *cobra.Command {
	var parts uint64
	cmd := &cobra.Command{
		Use:   "split <claim-id>",
		Short: "Replace a claim with equal-weight children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				result, err := n.engine.Split(ctx, id, parts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"parent": id, "children": result.IDs()})
			})
		},
	}
	cmd.Flags().Uint64Var(&parts, "parts", 2, "number of children")
	return cmd
}

func newRedeemCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <claim-id>",
		Short: "Retire a claim and pay out its accrued yield",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				receipt, err := n.engine.Redeem(ctx, accrual.RedeemRequest{ClaimID: id})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
}

func newAdvanceCmd(flags *globalFlags) *cobra.Command {
	var through int64
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Distribute yield through an elapsed hour (default: every completed hour)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				var (
					summary *accrual.AdvanceSummary
					err     error
				)
				if through < 0 {
					summary, err = n.engine.Settle(ctx)
				} else {
					summary, err = n.engine.AdvanceTo(ctx, uint64(through))
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().Int64Var(&through, "through", -1, "last hour to distribute")
	return cmd
}

func newVestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vest",
		Short: "Release every vesting epoch that has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withNode(cmd, func(ctx context.Context, n *node) error {
				receipt, err := n.engine.WithdrawVesting(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid claim id %q", raw)
	}
	return id, nil
}
