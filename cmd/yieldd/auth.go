package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuthCmd(flags *globalFlags) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage caller tokens",
	}
	var (
		subject string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a caller token with the key named by Access.TokenSecretEnv",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			verifier, err := cfg.Access.Verifier()
			if err != nil {
				return err
			}
			token, err := verifier.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "caller identity carried by the token")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("subject")
	auth.AddCommand(issue)
	return auth
}
