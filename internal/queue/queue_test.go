package queue

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"biz_manager/internal/db"
	"biz_manager/internal/model"
	"biz_manager/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestParseNoticeEvent(t *testing.T) {
	// Redis 返回的字段都是字符串
	msg, err := parseNoticeEvent(map[string]interface{}{
		"event_id":    "evt-1",
		"kind":        service.NoticeOrderCompleted,
		"title":       "Order #3 completed",
		"order_id":    "3",
		"product_id":  "9",
		"occurred_at": "1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, NoticeMessage{
		EventID:    "evt-1",
		Kind:       service.NoticeOrderCompleted,
		Title:      "Order #3 completed",
		OrderID:    3,
		ProductID:  9,
		OccurredAt: 1700000000000,
	}, msg)

	_, err = parseNoticeEvent(map[string]interface{}{"kind": "x", "title": "y"})
	assert.Error(t, err)
	_, err = parseNoticeEvent(map[string]interface{}{"event_id": "e", "kind": "x", "title": "y", "order_id": "abc"})
	assert.Error(t, err)
	_, err = parseNoticeEvent(map[string]interface{}{"event_id": "e", "kind": "", "title": "y"})
	assert.Error(t, err)
}

func TestNoticeRoundTripThroughStreamValues(t *testing.T) {
	orderID := uint(4)
	n := service.Notice{
		EventID:    "evt-2",
		Kind:       service.NoticeOrderCancelled,
		Title:      "Order #4 cancelled",
		OrderID:    &orderID,
		OccurredAt: time.UnixMilli(1700000000123),
	}
	msg, err := parseNoticeEvent(FromNotice(n).streamValues())
	require.NoError(t, err)

	back := msg.Notice()
	assert.Equal(t, n.EventID, back.EventID)
	require.NotNil(t, back.OrderID)
	assert.Equal(t, orderID, *back.OrderID)
	assert.Nil(t, back.ProductID)
	assert.True(t, n.OccurredAt.Equal(back.OccurredAt))
}

func TestConsumerHandleIsIdempotent(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:queue_consumer?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	l := logrus.New()
	l.SetOutput(io.Discard)
	c := &Consumer{db: gdb, logger: l}

	b, err := json.Marshal(NoticeMessage{EventID: "evt-3", Kind: service.NoticeProductCreated, Title: "Product created", ProductID: 1})
	require.NoError(t, err)
	require.NoError(t, c.handle(context.Background(), b))
	require.NoError(t, c.handle(context.Background(), b))
	assert.Error(t, c.handle(context.Background(), []byte(`{"kind":"x"}`)))

	var count int64
	require.NoError(t, gdb.Model(&model.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
