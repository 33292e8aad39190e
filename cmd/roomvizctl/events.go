package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomviz/roomviz-backend/internal/models"
	"github.com/roomviz/roomviz-backend/pkg/messagequeue"
)

func newEventsCmd(app func() *app) *cobra.Command {
	var binding string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail ledger events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if a.queue == nil {
				return errors.New("RABBITMQ_URL is not set")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return a.queue.Consume(ctx, a.exchange, binding, func(d messagequeue.Delivery) {
				fmt.Fprintln(out, formatLedgerEvent(d))
			})
		},
	}
	cmd.Flags().StringVar(&binding, "bind", "#", "routing key pattern, e.g. credits.*")
	return cmd
}

func formatLedgerEvent(d messagequeue.Delivery) string {
	var evt models.LedgerEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return fmt.Sprintf("%s\t<undecodable: %v>", d.RoutingKey, err)
	}
	line := fmt.Sprintf("%s\t%s\tuser=%s plan=%s monthly=%d purchased=%d",
		evt.OccurredAt.Format(time.RFC3339), evt.Kind, evt.UserID, evt.Plan,
		evt.MonthlyCredits, evt.PurchasedCredits)
	if evt.Delta != 0 {
		line += fmt.Sprintf(" delta=%+d", evt.Delta)
	}
	if evt.Source != "" {
		line += " source=" + evt.Source
	}
	return line
}
