package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态，封闭枚举。
type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing" // 默认状态，不影响库存
	OrderCompleted  OrderStatus = "completed"  // 完成：出库
	OrderCancelled  OrderStatus = "cancelled"  // 取消：若之前已完成则回库
)

// 早期版本前端提交的越南语状态名，边界处统一归一化。
var legacyStatusLabels = map[string]OrderStatus{
	"đang xử lý": OrderProcessing,
	"hoàn thành": OrderCompleted,
	"đã hủy":     OrderCancelled,
}

// ParseOrderStatus 将外部输入解析为 OrderStatus，未知值返回错误。
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch OrderStatus(s) {
	case OrderProcessing, OrderCompleted, OrderCancelled:
		return OrderStatus(s), nil
	}
	if st, ok := legacyStatusLabels[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// StockEffect 描述一次状态迁移对库存的影响。
type StockEffect int

const (
	EffectNone     StockEffect = iota
	EffectOutbound             // 出库 -quantity
	EffectInbound              // 回库 +quantity
)

// TransitionEffect 迁移表：只有进入/离开 completed 才会产生台账记录。
func TransitionEffect(from, to OrderStatus) StockEffect {
	switch {
	case from != OrderCompleted && to == OrderCompleted:
		return EffectOutbound
	case from == OrderCompleted && to != OrderCompleted:
		return EffectInbound
	default:
		return EffectNone
	}
}

// Order 订单
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID uint            `gorm:"not null;index" json:"customer_id"`
	ProductID  uint            `gorm:"not null;index" json:"product_id"`
	Quantity   int64           `gorm:"not null;default:1" json:"quantity"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"` // 创建时固定，之后不随库存/状态变化
	Status     OrderStatus     `gorm:"size:32;not null;default:processing;index" json:"status"`
	Date       time.Time       `gorm:"not null;index" json:"date"`
	Category   string          `gorm:"size:100" json:"category"`
	Region     string          `gorm:"size:100" json:"region"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"-"`
	Product  *Product  `gorm:"foreignKey:ProductID" json:"-"`
}

func (Order) TableName() string { return "orders" }
