package service

import (
	"context"
	"time"

	"biz_manager/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 通知类型
const (
	NoticeOrderCompleted = "order_completed"
	NoticeOrderCancelled = "order_cancelled"
	NoticeProductCreated = "product_created"
	NoticeProductUpdated = "product_updated"
	NoticeProductDeleted = "product_deleted"
)

// Notice 一次待发出的通知。
type Notice struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	OrderID    *uint     `json:"order_id,omitempty"`
	ProductID  *uint     `json:"product_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (n Notice) withDefaults() Notice {
	if n.EventID == "" {
		n.EventID = uuid.New().String()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	return n
}

// DBNotifier 直接写 notifications 表。
type DBNotifier struct {
	db *gorm.DB
}

func NewDBNotifier(db *gorm.DB) *DBNotifier { return &DBNotifier{db: db} }

func (d *DBNotifier) Notify(ctx context.Context, n Notice) error {
	return RecordNotification(ctx, d.db, n)
}

// RecordNotification 按 event_id 幂等落库：重复事件直接忽略。
func RecordNotification(ctx context.Context, db *gorm.DB, n Notice) error {
	n = n.withDefaults()
	row := &model.Notification{
		CreatedAt: n.OccurredAt,
		EventID:   n.EventID,
		Kind:      n.Kind,
		Title:     n.Title,
		OrderID:   n.OrderID,
		ProductID: n.ProductID,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(row).Error
}

// ListNotifications 最新的在前。
func (s *Service) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var list []model.Notification
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

func uintPtr(v uint) *uint { return &v }
