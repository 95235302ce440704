package queue

import (
	"context"
	"encoding/json"

	"biz_manager/internal/config"
	"biz_manager/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"gorm.io/gorm"
)

// Consumer 消费通知事件并落库。重复投递由 event_id 唯一索引吸收。
type Consumer struct {
	r      *kafka.Reader
	db     *gorm.DB
	logger *logrus.Logger
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, logger *logrus.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db:     db,
		logger: logger,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.handle(messageContext(ctx, m), m.Value); err != nil {
			config.LogError(c.logger, "queue", "Consumer.Run", "drop notice message", string(m.Key), err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	ctx, span := otel.Tracer("biz_manager/internal/queue").Start(ctx, "notification.consume")
	defer span.End()

	var msg NoticeMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return service.RecordNotification(ctx, c.db, msg.Notice())
}

func messageContext(ctx context.Context, m kafka.Message) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range m.Headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
