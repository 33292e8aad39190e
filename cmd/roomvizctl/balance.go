package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/models"
)

type balanceView struct {
	Account     *models.Account     `json:"account"`
	Entitlement credits.Entitlement `json:"entitlement"`
}

func newBalanceCmd(app func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "balance <userId>",
		Short: "Show a user's plan and credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users := app().users
			account, err := users.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ent, err := users.GetEntitlement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeBalance(cmd, balanceView{Account: account, Entitlement: ent}, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeBalance(cmd *cobra.Command, v balanceView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "user\t%s\n", v.Account.ID)
	fmt.Fprintf(w, "plan\t%s\n", v.Entitlement.Plan)
	if v.Entitlement.Unlimited {
		fmt.Fprintf(w, "credits\tunlimited\n")
		return w.Flush()
	}
	fmt.Fprintf(w, "monthly\t%d\n", v.Entitlement.MonthlyCredits)
	fmt.Fprintf(w, "purchased\t%d\n", v.Entitlement.PurchasedCredits)
	if v.Entitlement.PurchasedCreditsExpiry != nil {
		fmt.Fprintf(w, "expires\t%s\n", v.Entitlement.PurchasedCreditsExpiry.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "total\t%d\n", v.Entitlement.Total)
	return w.Flush()
}
