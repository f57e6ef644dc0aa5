package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"yieldledger/config"
	nativecommon "yieldledger/native/common"
)

// tokenEnv supplies --token when the flag is not given.
const tokenEnv = "YIELDD_TOKEN"

type globalFlags struct {
	configPath string
	caller     string
	token      string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Time-bucketed yield accrual ledger",
		Long: `yieldd keeps a ledger of principal claims and distributes an hourly
yield curve across every claim active in each hour.

Mutating commands run one ledger operation against the database under
DataDir and exit. serve keeps the ledger settled and exposes a read-only
reporting API.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "./yieldd.toml", "path to the TOML config file")
	root.PersistentFlags().StringVar(&flags.caller, "caller", "", "caller identity checked against Access.Roles")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "signed caller token, required instead of --caller when Access.TokenSecretEnv is set (env "+tokenEnv+")")

	root.AddCommand(
		newServeCmd(flags),
		newStartSaleCmd(flags),
		newDepositCmd(flags),
		newSplitCmd(flags),
		newRedeemCmd(flags),
		newAdvanceCmd(flags),
		newVestCmd(flags),
		newShowCmd(flags),
		newExportCmd(flags),
		newConfigCmd(flags),
		newAuthCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, version)
			},
		},
	)
	return root
}

func (f *globalFlags) load() (*config.Config, error) {
	return config.Load(f.configPath)
}

// context attaches the caller identity. With caller tokens configured the
// identity comes only from a verified token.
func (f *globalFlags) context(ctx context.Context, cfg *config.Config) (context.Context, error) {
	token := f.token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if !cfg.Access.TokensEnabled() {
		if token != "" {
			return ctx, errors.New("--token requires Access.TokenSecretEnv")
		}
		if f.caller == "" {
			return ctx, nil
		}
		return nativecommon.WithCaller(ctx, f.caller), nil
	}
	if f.caller != "" {
		return ctx, fmt.Errorf("%w: --caller is not accepted when caller tokens are enabled", nativecommon.ErrUnauthorized)
	}
	if token == "" {
		return ctx, nil
	}
	verifier, err := cfg.Access.Verifier()
	if err != nil {
		return ctx, err
	}
	return verifier.WithToken(ctx, token)
}

// withNode loads the config, opens the ledger, starts a configured sale and
// runs fn.
func (f *globalFlags) withNode(cmd *cobra.Command, fn func(ctx context.Context, n *node) error) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	ctx, err := f.context(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Close()
	if err := n.ensureSale(ctx); err != nil {
		return err
	}
	return fn(ctx, n)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
