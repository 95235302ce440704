package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"biz_manager/internal/config"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher 通知事件的下游，生产环境是 Kafka Producer。
type Publisher interface {
	Publish(ctx context.Context, msg NoticeMessage) error
}

// Relay 将 Redis Stream 里的通知事件转发到 Kafka。
// 发布成功后才 ACK；失败的消息留在 pending 列表里下一轮重试。
type Relay struct {
	rdb      *rd.Client
	producer Publisher
	logger   *logrus.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, producer Publisher, logger *logrus.Logger, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:      rdb,
		producer: producer,
		logger:   logger,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		config.LogError(r.logger, "queue", "Relay.Run", "ensure consumer group", r.stream, err)
		return
	}

	for ctx.Err() == nil {
		// 先处理自己名下的 pending，再读新消息
		msgs, err := r.readGroup(ctx, "0", 0)
		if err == nil && len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			config.LogError(r.logger, "queue", "Relay.Run", "read stream", r.stream, err)
			time.Sleep(300 * time.Millisecond)
			continue
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				config.LogError(r.logger, "queue", "Relay.Run", "relay message", xm.ID, err)
				time.Sleep(200 * time.Millisecond)
				break
			}
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}).Result()
	if errors.Is(err, rd.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []rd.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseNoticeEvent(xm.Values)
	if err != nil {
		// 脏消息 ACK 掉，不阻塞后续
		r.logger.WithFields(logrus.Fields{"module": "queue", "id": xm.ID}).Warn("discard malformed notice: " + err.Error())
		return r.ackAndDelete(ctx, xm.ID)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.producer.Publish(pubCtx, msg); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseNoticeEvent(values map[string]interface{}) (NoticeMessage, error) {
	var msg NoticeMessage
	var err error
	if msg.EventID, err = streamString(values, "event_id"); err != nil {
		return NoticeMessage{}, err
	}
	if msg.Kind, err = streamString(values, "kind"); err != nil {
		return NoticeMessage{}, err
	}
	if msg.Title, err = streamString(values, "title"); err != nil {
		return NoticeMessage{}, err
	}
	if msg.OrderID, err = streamUint(values, "order_id"); err != nil {
		return NoticeMessage{}, err
	}
	if msg.ProductID, err = streamUint(values, "product_id"); err != nil {
		return NoticeMessage{}, err
	}
	if raw, ok := values["occurred_at"]; ok {
		s, err := toString("occurred_at", raw)
		if err != nil {
			return NoticeMessage{}, err
		}
		if msg.OccurredAt, err = strconv.ParseInt(s, 10, 64); err != nil {
			return NoticeMessage{}, fmt.Errorf("invalid occurred_at %q", s)
		}
	}
	if err := msg.Validate(); err != nil {
		return NoticeMessage{}, err
	}
	return msg, nil
}

// streamUint 缺省字段视为 0。
func streamUint(values map[string]interface{}, key string) (uint, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	s, err := toString(key, raw)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return uint(n), nil
}

func streamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	return toString(key, v)
}

func toString(key string, v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
