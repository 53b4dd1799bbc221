package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessage(_ context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_PublishesKeyedJSON(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	s := NewKafkaSinkWithWriter(w)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	require.NoError(t, s.Notify(context.Background(), "student-1", "DELIVERY_ASSIGNED", "group 1"))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "student-1", string(w.msgs[0].Key))

	var m Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &m))
	require.Equal(t, Message{UserID: "student-1", Kind: "DELIVERY_ASSIGNED", Message: "group 1", CreatedAt: at}, m)

	require.NoError(t, s.Close())
	require.True(t, w.closed)
}

func TestKafkaSink_WrapsWriteError(t *testing.T) {
	t.Parallel()
	s := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("leader not available")})
	err := s.Notify(context.Background(), "u1", "STOCK_LOW", "low")
	require.ErrorContains(t, err, "leader not available")
}
