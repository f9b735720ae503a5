// Package events публикует события жизненного цикла аренды во внешнюю шину.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/model"
)

const (
	headerEventType       = "event-type"
	defaultPublishTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher отправляет события аренды в топик Kafka.
// Ключом сообщения служит идентификатор автомобиля, поэтому события одного автомобиля упорядочены.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration
}

// NewKafkaPublisher создаёт публикатор для brokers и topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sugar := logger.Sugar()
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           defaultPublishTimeout,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
		Logger:                 kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:            kafka.LoggerFunc(sugar.Errorf),
	}

	return &KafkaPublisher{writer: w, logger: logger, timeout: defaultPublishTimeout}, nil
}

// Publish отправляет событие. Ошибка доставки возвращается вызывающему.
// Отправка ограничена собственным таймаутом и не прерывается отменой запроса,
// так как событие относится к уже зафиксированной транзакции.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.RentEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	p.logger.Debug("rent event published",
		zap.String("type", string(event.Type)),
		zap.Int64("rentID", event.RentID),
	)
	return nil
}

// Close сбрасывает буфер и закрывает соединения с брокерами.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(event model.RentEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal rent event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.CarID, 10)),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
	}, nil
}

// LogPublisher пишет события в лог. Используется, когда Kafka не настроена.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор-заглушку.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish записывает событие в лог.
func (p *LogPublisher) Publish(_ context.Context, event model.RentEvent) error {
	p.logger.Info("rent event",
		zap.String("type", string(event.Type)),
		zap.Int64("rentID", event.RentID),
		zap.Int64("carID", event.CarID),
		zap.String("status", string(event.Status)),
	)
	return nil
}

// Close ничего не делает.
func (p *LogPublisher) Close() error { return nil }
