package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/pkg/logger"
)

// DB is the subset of pgxpool.Pool used by InboxSink.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Notification is one inbox row.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// InboxSink stores notifications in the notifications table.
type InboxSink struct {
	db  DB
	now func() time.Time
}

// NewInboxSink creates an inbox sink over the shared pool.
func NewInboxSink(db DB) *InboxSink {
	return &InboxSink{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Notify inserts one unread notification.
func (s *InboxSink) Notify(ctx context.Context, userID, kind, message string) error {
	if userID == "" {
		return fmt.Errorf("recipient is required")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, message, read, created_at) VALUES ($1, $2, $3, $4, FALSE, $5)`,
		domain.NewID(), userID, kind, message, s.now(),
	)
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", userID, err)
	}
	logger.Debug("notification stored", zap.String("recipient", userID), zap.String("kind", kind))
	return nil
}

// List returns the newest notifications of a user.
func (s *InboxSink) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, kind, message, read, created_at FROM notifications
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications of %s: %w", userID, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Notification])
}

// MarkRead flags one notification of userID as read.
func (s *InboxSink) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune deletes notifications created before the cutoff.
func (s *InboxSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Sink = (*InboxSink)(nil)
