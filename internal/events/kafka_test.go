package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/carrental-system/internal/model"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() model.RentEvent {
	return model.RentEvent{
		Type:       model.RentEventCreated,
		RentID:     11,
		CarID:      7,
		UserID:     3,
		Status:     model.RentStatusPending,
		PriceCents: 3000,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &stubWriter{}
	p := &KafkaPublisher{writer: w, logger: zap.NewNop()}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "7", string(msg.Key))
	assert.Equal(t, testEvent().OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, headerEventType, msg.Headers[0].Key)
	assert.Equal(t, "rent.created", string(msg.Headers[0].Value))

	var got model.RentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, testEvent(), got)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &stubWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, logger: zap.NewNop()}

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

type blockingWriter struct{}

func (blockingWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingWriter) Close() error { return nil }

func TestKafkaPublisher_PublishIsBounded(t *testing.T) {
	p := &KafkaPublisher{writer: blockingWriter{}, logger: zap.NewNop(), timeout: 50 * time.Millisecond}

	start := time.Now()
	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestKafkaPublisher_IgnoresRequestCancellation(t *testing.T) {
	w := &stubWriter{}
	p := &KafkaPublisher{writer: w, logger: zap.NewNop(), timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Publish(ctx, testEvent()))
	assert.Len(t, w.msgs, 1)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic", nil)
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "rent-events", nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "rent event", entry.Message)
	assert.Equal(t, int64(11), entry.ContextMap()["rentID"])
}
