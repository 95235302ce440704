package service

import (
	"context"
	"fmt"

	"biz_manager/internal/config"
	"biz_manager/internal/model"
)

// StockReading 一次库存读取；Source 为 cache 或 db。
type StockReading struct {
	ProductID uint   `json:"product_id"`
	Stock     int64  `json:"stock"`
	Source    string `json:"source"`
}

type stockSnapshot struct {
	Stock int64
	AsOf  uint
}

// snapshot 同一条语句读出库存与其包含的最大台账 ID。
// 同一商品的台账在行锁下按提交顺序分配 ID，所以二者一致。
func (s *Service) snapshot(ctx context.Context, productID uint) (*stockSnapshot, error) {
	var snap stockSnapshot
	err := s.db.WithContext(ctx).Model(&model.Product{}).
		Select("stock, COALESCE((SELECT MAX(se.id) FROM stock_entries se WHERE se.product_id = products.id), 0) AS as_of").
		Where("id = ?", productID).
		Take(&snap).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return nil, err
	}
	return &snap, nil
}

// ReadStock 优先读缓存，未命中时回源数据库并按快照回填。缓存故障只降级不报错。
func (s *Service) ReadStock(ctx context.Context, productID uint) (*StockReading, error) {
	if s.cache != nil {
		n, found, err := s.cache.GetStock(ctx, productID)
		if err != nil {
			config.LogError(s.logger, "service", "ReadStock", "stock cache read", productID, err)
		} else if found {
			return &StockReading{ProductID: productID, Stock: n, Source: "cache"}, nil
		}
	}
	snap, err := s.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if _, err := s.cache.SetStock(ctx, productID, snap.Stock, snap.AsOf); err != nil {
			config.LogError(s.logger, "service", "ReadStock", "stock cache backfill", productID, err)
		}
	}
	return &StockReading{ProductID: productID, Stock: snap.Stock, Source: "db"}, nil
}

// WarmStock 将数据库库存写入缓存。快照已过旧时缓存保持不变，返回的仍是数据库值。
func (s *Service) WarmStock(ctx context.Context, productID uint) (*StockReading, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("%w: stock cache disabled", ErrUnavailable)
	}
	snap, err := s.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.SetStock(ctx, productID, snap.Stock, snap.AsOf); err != nil {
		return nil, err
	}
	return &StockReading{ProductID: productID, Stock: snap.Stock, Source: "db"}, nil
}
