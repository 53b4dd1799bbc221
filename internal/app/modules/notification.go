package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/config"
	"kalium.io/kalium/internal/jobs"
	"kalium.io/kalium/internal/notification"
	"kalium.io/kalium/internal/pkg/logger"
)

// NotificationModule builds the configured sinks and registers the event
// triggers that feed them.
type NotificationModule struct {
	infra *Infrastructure
	sink  notification.Sink
	inbox *notification.InboxSink
	kafka *notification.KafkaSink
}

// NewNotificationModule creates the sinks listed in notification.sinks and
// registers the triggers on the shared dispatcher.
func NewNotificationModule(infra *Infrastructure) (*NotificationModule, error) {
	cfg := infra.Config.Notification
	m := &NotificationModule{infra: infra}

	var sinks notification.MultiSink
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notification.LogSink{})
		case config.SinkInbox:
			if infra.DB == nil {
				return nil, fmt.Errorf("notification sink %q requires the postgres driver", name)
			}
			m.inbox = notification.NewInboxSink(infra.DB.Pool)
			sinks = append(sinks, m.inbox)
		case config.SinkKafka:
			k, err := notification.NewKafkaSink(cfg.Kafka, infra.Tracing.Provider)
			if err != nil {
				return nil, fmt.Errorf("init kafka sink: %w", err)
			}
			m.kafka = k
			sinks = append(sinks, k)
		default:
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}
	m.sink = sinks

	notification.NewTriggers(m.sink, cfg.StaffIDs).Register(infra.Dispatcher)
	logger.Info("Notification sinks configured",
		zap.Strings("sinks", cfg.Sinks),
		zap.Int("staff", len(cfg.StaffIDs)),
	)
	return m, nil
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil || m.inbox == nil {
		return
	}
	deps.Inbox = m.inbox
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m.inbox == nil {
		return
	}
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.inbox, jobs.DefaultNotificationRetention))
}

// CleanupEnabled reports whether the inbox retention job should be scheduled.
func (m *NotificationModule) CleanupEnabled() bool { return m.inbox != nil }

func (m *NotificationModule) Start(context.Context) error { return nil }

func (m *NotificationModule) Shutdown(context.Context) error {
	if m.kafka != nil {
		return m.kafka.Close()
	}
	return nil
}
