// Package notification renders committed lifecycle events to end users.
//
// Triggers map each event to its recipients and a message; a Sink delivers
// the message. Sinks run after commit on the notify worker pool and never
// take part in the business transaction.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/pkg/logger"
)

// Sink delivers one notification to one user.
type Sink interface {
	Notify(ctx context.Context, userID, kind, message string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, userID, kind, message string) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, userID, kind, message string) error {
	return f(ctx, userID, kind, message)
}

// LogSink writes notifications to the service log.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(_ context.Context, userID, kind, message string) error {
	logger.Info("notification",
		zap.String("recipient", userID),
		zap.String("kind", kind),
		zap.String("message", message),
	)
	return nil
}

// MultiSink fans a notification out to several sinks. Every sink is tried;
// the failures are joined.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(ctx context.Context, userID, kind, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, userID, kind, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notifyMany sends to every recipient (best-effort). Failures are logged and
// do not prevent delivery to other recipients.
func notifyMany(ctx context.Context, sink Sink, recipientIDs []string, kind, message string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	var failCount int
	for _, id := range recipientIDs {
		if err := sink.Notify(ctx, id, kind, message); err != nil {
			failCount++
			logger.Error("notification delivery failed",
				zap.String("recipient", id),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}

	if failCount > 0 {
		return fmt.Errorf("notification delivery failed for %d/%d recipients", failCount, len(recipientIDs))
	}
	return nil
}

var (
	_ Sink = LogSink{}
	_ Sink = MultiSink(nil)
	_ Sink = SinkFunc(nil)
)
