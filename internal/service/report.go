package service

import (
	"context"
	"sort"

	"biz_manager/internal/model"

	"github.com/shopspring/decimal"
)

type LabelTotal struct {
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

type MonthTotal struct {
	Month int             `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// RevenueSummary 已完成订单的营收汇总。
type RevenueSummary struct {
	Total      decimal.Decimal `json:"total_revenue"`
	ByCategory []LabelTotal    `json:"by_category"`
	ByRegion   []LabelTotal    `json:"by_region"`
	ByMonth    []MonthTotal    `json:"by_month"`
}

// Revenue 在 Go 里聚合，避免不同数据库的日期函数差异。
func (s *Service) Revenue(ctx context.Context) (*RevenueSummary, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Select("id", "amount", "date", "category", "region").
		Where("status = ?", model.OrderCompleted).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	byCategory := map[string]decimal.Decimal{}
	byRegion := map[string]decimal.Decimal{}
	byMonth := map[int]decimal.Decimal{}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
		byCategory[o.Category] = byCategory[o.Category].Add(o.Amount)
		byRegion[o.Region] = byRegion[o.Region].Add(o.Amount)
		m := int(o.Date.Month())
		byMonth[m] = byMonth[m].Add(o.Amount)
	}

	out := &RevenueSummary{
		Total:      total,
		ByCategory: sortedLabels(byCategory),
		ByRegion:   sortedLabels(byRegion),
		ByMonth:    make([]MonthTotal, 0, len(byMonth)),
	}
	for m, total := range byMonth {
		out.ByMonth = append(out.ByMonth, MonthTotal{Month: m, Total: total})
	}
	sort.Slice(out.ByMonth, func(i, j int) bool { return out.ByMonth[i].Month < out.ByMonth[j].Month })
	return out, nil
}

func sortedLabels(m map[string]decimal.Decimal) []LabelTotal {
	out := make([]LabelTotal, 0, len(m))
	for k, v := range m {
		out = append(out, LabelTotal{Label: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// ProductStock 单个商品的当前库存。
type ProductStock struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
}

// StockOverview 经营概览：实体数量、总库存、按商品库存及库存最高的商品。
type StockOverview struct {
	Products    int64          `json:"products_count"`
	Customers   int64          `json:"customers_count"`
	Orders      int64          `json:"orders_count"`
	TotalStock  int64          `json:"total_stock"`
	ByProduct   []ProductStock `json:"by_product"`
	TopProducts []ProductStock `json:"top_products"`
}

const topProductsLimit = 5

func (s *Service) StockOverview(ctx context.Context) (*StockOverview, error) {
	out := &StockOverview{}
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Customer{}).Count(&out.Customers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Order{}).Count(&out.Orders).Error; err != nil {
		return nil, err
	}

	var products []model.Product
	if err := db.Select("id", "name", "stock").Order("id").Find(&products).Error; err != nil {
		return nil, err
	}
	out.Products = int64(len(products))
	out.ByProduct = make([]ProductStock, 0, len(products))
	for _, p := range products {
		out.TotalStock += p.Stock
		out.ByProduct = append(out.ByProduct, ProductStock{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
	}

	top := append([]ProductStock(nil), out.ByProduct...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Stock > top[j].Stock })
	if len(top) > topProductsLimit {
		top = top[:topProductsLimit]
	}
	out.TopProducts = top
	return out, nil
}
