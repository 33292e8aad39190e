package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/models"
	"github.com/roomviz/roomviz-backend/pkg/messagequeue"
)

// NopPublisher drops ledger events. Used when RABBITMQ_URL is empty.
type NopPublisher struct{}

func (NopPublisher) PublishLedgerEvent(context.Context, models.LedgerEvent) error { return nil }

// NopAlerter drops alerts. Used when SMTP is not configured.
type NopAlerter struct{}

func (NopAlerter) Alert(context.Context, string, string) error { return nil }

type queueLedgerPublisher struct {
	queue    messagequeue.MessageQueue
	exchange string
}

// NewQueueLedgerPublisher publishes ledger events as JSON to exchange,
// routed by event kind.
func NewQueueLedgerPublisher(queue messagequeue.MessageQueue, exchange string) LedgerPublisher {
	return &queueLedgerPublisher{queue: queue, exchange: exchange}
}

func (p *queueLedgerPublisher) PublishLedgerEvent(ctx context.Context, evt models.LedgerEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	return p.queue.Publish(ctx, p.exchange, evt.Kind, body)
}

// EmailSender is satisfied by *mailer.Mailer.
type EmailSender interface {
	SendEmail(ctx context.Context, recipient, subject, body string) error
}

type mailAlerter struct {
	sender    EmailSender
	recipient string
	logger    *zap.Logger
}

// NewMailAlerter mails alerts to recipient.
func NewMailAlerter(sender EmailSender, recipient string, logger *zap.Logger) OperatorAlerter {
	return &mailAlerter{sender: sender, recipient: recipient, logger: logger}
}

func (a *mailAlerter) Alert(ctx context.Context, subject, body string) error {
	if err := a.sender.SendEmail(ctx, a.recipient, "[roomviz] "+subject, body); err != nil {
		return fmt.Errorf("send operator alert: %w", err)
	}
	a.logger.Info("Operator alert sent", zap.String("subject", subject))
	return nil
}

func newLedgerEvent(kind string, a *models.Account, delta int, source, sourceID string, at time.Time) models.LedgerEvent {
	return models.LedgerEvent{
		Kind:             kind,
		UserID:           a.ID,
		Plan:             a.Plan,
		MonthlyCredits:   a.MonthlyCredits,
		PurchasedCredits: a.PurchasedCredits,
		Delta:            delta,
		Source:           source,
		SourceID:         sourceID,
		OccurredAt:       at.UTC(),
	}
}

// alertTimeout bounds one operator alert. Alerts are raised inside webhook
// and generation requests, which must not wait on a slow mail relay.
const alertTimeout = 5 * time.Second

// notifier bundles best-effort side channels shared by the services.
type notifier struct {
	publisher    LedgerPublisher
	alerter      OperatorAlerter
	logger       *zap.Logger
	alertTimeout time.Duration
}

func newNotifier(publisher LedgerPublisher, alerter OperatorAlerter, logger *zap.Logger) notifier {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if alerter == nil {
		alerter = NopAlerter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return notifier{publisher: publisher, alerter: alerter, logger: logger, alertTimeout: alertTimeout}
}

func (n notifier) publish(ctx context.Context, evt models.LedgerEvent) {
	if err := n.publisher.PublishLedgerEvent(ctx, evt); err != nil {
		n.logger.Warn("Failed to publish ledger event",
			zap.String("kind", evt.Kind), zap.String("userId", evt.UserID), zap.Error(err))
	}
}

func (n notifier) alert(ctx context.Context, subject, body string) {
	ctx, cancel := context.WithTimeout(ctx, n.alertTimeout)
	defer cancel()
	if err := n.alerter.Alert(ctx, subject, body); err != nil {
		n.logger.Error("Failed to raise operator alert", zap.String("subject", subject), zap.Error(err))
	}
}
