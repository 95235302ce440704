package model

import "time"

// Notification 系统通知（尽力而为写入，不与库存事务绑定）。
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// EventID 作为幂等键：同一事件重复投递只落一条。
	EventID   string `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	Kind      string `gorm:"size:32;not null;index" json:"kind"`
	Title     string `gorm:"size:255;not null" json:"title"`
	OrderID   *uint  `gorm:"index" json:"order_id,omitempty"`
	ProductID *uint  `gorm:"index" json:"product_id,omitempty"`
}

func (Notification) TableName() string { return "notifications" }
