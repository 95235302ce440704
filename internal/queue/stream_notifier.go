package queue

import (
	"context"

	"biz_manager/internal/service"

	rd "github.com/redis/go-redis/v9"
)

// StreamNotifier 把通知写入 Redis Stream，由 Relay 异步转发到 Kafka。
type StreamNotifier struct {
	rdb    *rd.Client
	stream string
}

func NewStreamNotifier(rdb *rd.Client, stream string) *StreamNotifier {
	return &StreamNotifier{rdb: rdb, stream: stream}
}

func (s *StreamNotifier) Notify(ctx context.Context, n service.Notice) error {
	msg := FromNotice(n)
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: s.stream,
		MaxLen: 100000,
		Approx: true,
		Values: msg.streamValues(),
	}).Err()
}
