package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
)

// NotificationService handles emitting notifications for account events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleUserRegistered)
	n.dispatcher.Subscribe(events.EventUserFollowed, n.handleUserFollowed)
	n.dispatcher.Subscribe(events.EventUserUnfollowed, n.handleAudit)
	n.dispatcher.Subscribe(events.EventUserLoggedOut, n.handleAudit)
}

func (n *NotificationService) handleUserRegistered(ctx context.Context, event events.Event) error {
	n.log(event)
	n.logEmailNotification(ctx, event)
	return nil
}

func (n *NotificationService) handleUserFollowed(ctx context.Context, event events.Event) error {
	n.log(event)
	n.logWebhookNotification(ctx, event)
	return nil
}

func (n *NotificationService) handleAudit(_ context.Context, event events.Event) error {
	n.log(event)
	return nil
}

func (n *NotificationService) log(event events.Event) {
	n.logger.Info(string(event.Type), zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
}

func (n *NotificationService) logEmailNotification(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("email notification",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) logWebhookNotification(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.Type)))
}
