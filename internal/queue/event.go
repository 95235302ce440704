package queue

import (
	"fmt"
	"time"

	"biz_manager/internal/service"
)

// NoticeMessage 写入 Redis Stream / Kafka 的通知事件。ID 为 0 表示不关联。
type NoticeMessage struct {
	EventID    string `json:"event_id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	OrderID    uint   `json:"order_id,omitempty"`
	ProductID  uint   `json:"product_id,omitempty"`
	OccurredAt int64  `json:"occurred_at"` // unix 毫秒
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m NoticeMessage) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

func FromNotice(n service.Notice) NoticeMessage {
	m := NoticeMessage{
		EventID:    n.EventID,
		Kind:       n.Kind,
		Title:      n.Title,
		OccurredAt: n.OccurredAt.UnixMilli(),
	}
	if n.OrderID != nil {
		m.OrderID = *n.OrderID
	}
	if n.ProductID != nil {
		m.ProductID = *n.ProductID
	}
	return m
}

func (m NoticeMessage) Notice() service.Notice {
	n := service.Notice{
		EventID: m.EventID,
		Kind:    m.Kind,
		Title:   m.Title,
	}
	if m.OccurredAt > 0 {
		n.OccurredAt = time.UnixMilli(m.OccurredAt)
	}
	if m.OrderID != 0 {
		id := m.OrderID
		n.OrderID = &id
	}
	if m.ProductID != 0 {
		id := m.ProductID
		n.ProductID = &id
	}
	return n
}

func (m NoticeMessage) streamValues() map[string]interface{} {
	return map[string]interface{}{
		"event_id":    m.EventID,
		"kind":        m.Kind,
		"title":       m.Title,
		"order_id":    m.OrderID,
		"product_id":  m.ProductID,
		"occurred_at": m.OccurredAt,
	}
}
