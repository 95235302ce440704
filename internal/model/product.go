package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品：基础信息 + 缓存库存。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string          `gorm:"size:150;not null" json:"name"`
	Category    string          `gorm:"size:100" json:"category"`
	Region      string          `gorm:"size:100" json:"region"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`
	Description string          `gorm:"type:text" json:"description"`
	Brand       string          `gorm:"size:100" json:"brand"`
	Supplier    string          `gorm:"size:150" json:"supplier"`
	SKU         *string         `gorm:"size:100;uniqueIndex" json:"sku"`

	// Stock 是台账汇总的物化值，只能由台账写入器（同一事务内）或对账任务修改。
	Stock int64 `gorm:"not null;default:0" json:"stock"`
}

func (Product) TableName() string { return "products" }
