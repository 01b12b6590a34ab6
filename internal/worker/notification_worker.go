// Package worker attaches the background consumers of ticket events.
package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/service"
)

// NotificationWorker groups the subscribers that react to published ticket events.
type NotificationWorker struct {
	Notifications *service.NotificationService
	Relay         *events.RedisRelay
	Logger        *zap.Logger
}

// Start subscribes every configured consumer to dispatcher. Nil consumers are skipped,
// so a deployment without Redis still gets status and assignment alerts.
func (w NotificationWorker) Start(dispatcher events.Dispatcher) int {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		logger.Warn("event dispatcher missing; notification worker not started")
		return 0
	}

	attached := 0
	if w.Notifications != nil {
		w.Notifications.RegisterHandlers()
		attached++
	}
	if w.Relay != nil {
		w.Relay.Attach(dispatcher)
		attached++
	}
	logger.Info("notification worker started", zap.Int("consumers", attached))
	return attached
}

// StartNotificationWorker subscribes alert delivery to ticket lifecycle events.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, relay *events.RedisRelay, logger *zap.Logger) {
	NotificationWorker{Notifications: notificationService, Relay: relay, Logger: logger}.Start(dispatcher)
}
