package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd(wire wireFunc) *cobra.Command {
	var (
		a       *app
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:           "roomvizctl",
		Short:         "Operator tool for roomviz credit accounts",
		Long:          "roomvizctl inspects and adjusts credit balances and plans, and tails the ledger event stream.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			logger := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
			}
			wired, err := wire(cmd.Context(), logger)
			if err != nil {
				return err
			}
			a = wired
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	get := func() *app { return a }
	rootCmd.AddCommand(
		newBalanceCmd(get),
		newGrantCmd(get),
		newSetPlanCmd(get),
		newEventsCmd(get),
	)
	return rootCmd
}
