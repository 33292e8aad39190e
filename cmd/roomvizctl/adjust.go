package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/models"
)

const defaultActor = "roomvizctl"

func newGrantCmd(app func() *app) *cobra.Command {
	var (
		amount int
		reason string
		actor  string
	)
	cmd := &cobra.Command{
		Use:   "grant <userId>",
		Short: "Add purchased credits to a user (valid for 12 months)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return errors.New("--credits must be positive")
			}
			users := app().users
			account, err := users.AdjustCredits(cmd.Context(), actor, args[0], models.AdjustCreditsRequest{
				AddPurchased: &amount,
				Reason:       reason,
			})
			if err != nil {
				return err
			}
			return printAdjusted(cmd, account)
		},
	}
	cmd.Flags().IntVar(&amount, "credits", 0, "number of credits to add")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "operator recorded in the audit log")
	_ = cmd.MarkFlagRequired("credits")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newSetPlanCmd(app func() *app) *cobra.Command {
	var (
		monthly int
		reason  string
		actor   string
	)
	cmd := &cobra.Command{
		Use:   "set-plan <userId> <free|home|pro>",
		Short: "Change a user's plan, optionally resetting the monthly bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := args[1]
			req := models.AdjustCreditsRequest{Plan: &plan, Reason: reason}
			if cmd.Flags().Changed("monthly") {
				req.MonthlyCredits = &monthly
			}
			account, err := app().users.AdjustCredits(cmd.Context(), actor, args[0], req)
			if err != nil {
				return err
			}
			return printAdjusted(cmd, account)
		},
	}
	cmd.Flags().IntVar(&monthly, "monthly", 0, "monthly credits to set (default: the plan allotment)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "operator recorded in the audit log")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func printAdjusted(cmd *cobra.Command, account *models.Account) error {
	return writeBalance(cmd, balanceView{Account: account, Entitlement: credits.Resolve(account, time.Now())}, false)
}
