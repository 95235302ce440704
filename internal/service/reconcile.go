package service

import (
	"context"
	"time"

	"biz_manager/internal/config"
	"biz_manager/internal/model"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockCorrection 一条被对账修正的商品库存。
type StockCorrection struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Previous  int64  `json:"previous"`
	Stock     int64  `json:"stock"`
}

// ReconcileResult 对账结果。
type ReconcileResult struct {
	Scanned   int               `json:"scanned"`
	Corrected []StockCorrection `json:"corrected"`
	RanAt     time.Time         `json:"ran_at"`
}

// Reconcile 以台账为准重算所有商品库存并覆盖缓存字段。幂等，可重复执行。
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.reconcile")
	defer span.End()

	result := &ReconcileResult{Corrected: []StockCorrection{}, RanAt: time.Now()}
	var products []model.Product
	lastEntry := map[uint]uint{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁商品行，并发的出入库要等对账提交，求和期间不会有新台账。
		// sqlite 驱动会忽略 FOR UPDATE，它的写事务本身已串行。
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "name", "stock").Order("id").Find(&products).Error; err != nil {
			return err
		}

		var sums []struct {
			ProductID uint
			Total     int64
			LastID    uint
		}
		if err := tx.Model(&model.StockEntry{}).
			Select("product_id, COALESCE(SUM(quantity), 0) AS total, MAX(id) AS last_id").
			Group("product_id").
			Scan(&sums).Error; err != nil {
			return err
		}
		totals := make(map[uint]int64, len(sums))
		for _, row := range sums {
			totals[row.ProductID] = row.Total
			lastEntry[row.ProductID] = row.LastID
		}

		for i := range products {
			p := &products[i]
			want := totals[p.ID]
			if p.Stock == want {
				continue
			}
			if err := tx.Model(&model.Product{}).Where("id = ?", p.ID).UpdateColumn("stock", want).Error; err != nil {
				return err
			}
			result.Corrected = append(result.Corrected, StockCorrection{
				ProductID: p.ID,
				Name:      p.Name,
				Previous:  p.Stock,
				Stock:     want,
			})
			p.Stock = want
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Scanned = len(products)
	span.SetAttributes(
		attribute.Int("reconcile.scanned", result.Scanned),
		attribute.Int("reconcile.corrected", len(result.Corrected)),
	)

	if s.cache != nil {
		for _, p := range products {
			if _, err := s.cache.SetStock(ctx, p.ID, p.Stock, lastEntry[p.ID]); err != nil {
				config.LogError(s.logger, "service", "Reconcile", "refresh stock cache", p.ID, err)
			}
		}
	}
	if len(result.Corrected) > 0 {
		s.logger.WithField("corrected", result.Corrected).Warn("stock drift corrected from ledger")
	}
	return result, nil
}
