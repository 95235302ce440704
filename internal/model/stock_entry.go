package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// StockDirection 出入库方向，必须与数量符号一致。
type StockDirection string

const (
	DirectionIn  StockDirection = "in"
	DirectionOut StockDirection = "out"
)

// EntryReason 台账来源。
type EntryReason string

const (
	ReasonInitial        EntryReason = "initial"         // 创建商品时的期初库存
	ReasonAdjustment     EntryReason = "adjustment"      // 人工调整
	ReasonOrderCompleted EntryReason = "order_completed" // 订单完成出库
	ReasonOrderReverted  EntryReason = "order_reverted"  // 订单离开 completed 回库
	ReasonReversal       EntryReason = "reversal"        // 冲销某条台账
)

// ErrImmutableEntry 台账只追加，不允许原地修改或删除。
var ErrImmutableEntry = errors.New("stock entries are append-only")

// StockEntry 库存台账（只追加）。商品库存 = 该商品全部台账数量之和。
type StockEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ProductID uint           `gorm:"not null;index" json:"product_id"`
	Quantity  int64          `gorm:"not null" json:"quantity"` // 正数入库/回库，负数出库
	Direction StockDirection `gorm:"size:8;not null" json:"direction"`
	Reason    EntryReason    `gorm:"size:32;not null;index" json:"reason"`
	Location  string         `gorm:"size:100" json:"location"`
	EntryDate time.Time      `gorm:"not null" json:"entry_date"`
	Note      string         `gorm:"type:text" json:"note"`

	OrderID         *uint `gorm:"index" json:"order_id,omitempty"`
	ReversesEntryID *uint `gorm:"uniqueIndex" json:"reverses_entry_id,omitempty"`

	ProductName string `gorm:"-" json:"product_name,omitempty"`
}

func (StockEntry) TableName() string { return "stock_entries" }

// BeforeSave 保证方向与数量符号一致。
func (e *StockEntry) BeforeSave(*gorm.DB) error {
	if e.Quantity < 0 {
		e.Direction = DirectionOut
	} else if e.Quantity > 0 {
		e.Direction = DirectionIn
	}
	if e.Direction == "" {
		e.Direction = DirectionIn
	}
	return nil
}

func (e *StockEntry) BeforeUpdate(*gorm.DB) error { return ErrImmutableEntry }

func (e *StockEntry) BeforeDelete(*gorm.DB) error { return ErrImmutableEntry }
