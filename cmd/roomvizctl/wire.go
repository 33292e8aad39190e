package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/config"
	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/pkg/messagequeue"
)

type app struct {
	users    core.UserService
	queue    messagequeue.MessageQueue // nil when RABBITMQ_URL is unset
	exchange string
	closers  []func() error
}

func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type wireFunc func(ctx context.Context, logger *zap.Logger) (*app, error)

func wireApp(ctx context.Context, logger *zap.Logger) (*app, error) {
	cfg, err := config.LoadToolConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	a := &app{exchange: cfg.LedgerExchange}

	var (
		accounts db.AccountRepository
		audit    db.AuditRepository
	)
	if cfg.StorageDriver == config.StorageMemory {
		store := db.NewMemoryStore()
		accounts, audit = store.Accounts(), store.Audit()
	} else {
		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		clients, err := db.InitFirebase(initCtx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init firebase: %w", err)
		}
		a.closers = append(a.closers, clients.Close)
		accounts = db.NewFirestoreAccountRepository(clients.Firestore)
		audit = db.NewFirestoreAuditRepository(clients.Firestore)
	}

	var publisher core.LedgerPublisher = core.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		mq, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: cfg.RabbitMQURL, Logger: logger})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, mq.Close)
		a.queue = mq
		publisher = core.NewQueueLedgerPublisher(mq, cfg.LedgerExchange)
	}

	a.users = core.NewUserService(accounts, core.NewAuditService(audit), catalog, publisher, cfg.SignupBonusCredits, logger)
	return a, nil
}
