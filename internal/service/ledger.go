package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"biz_manager/internal/model"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// entryInput 台账写入参数，Delta 为带符号数量。
type entryInput struct {
	ProductID       uint
	Delta           int64
	Reason          model.EntryReason
	Location        string
	Note            string
	Date            time.Time
	OrderID         *uint
	ReversesEntryID *uint
}

type appendResult struct {
	Entry *model.StockEntry
	Stock int64
}

// appendEntry 在调用方事务内：条件原子更新商品库存 + 追加台账。
// 出库带 stock >= n 条件，不满足返回 ErrInsufficientStock，不做任何修改。
func appendEntry(tx *gorm.DB, in entryInput) (*appendResult, error) {
	if in.Delta == 0 {
		return nil, fmt.Errorf("%w: quantity must not be zero", ErrValidation)
	}

	q := tx.Model(&model.Product{}).Where("id = ?", in.ProductID)
	if in.Delta < 0 {
		q = q.Where("stock >= ?", -in.Delta)
	}
	res := q.UpdateColumn("stock", gorm.Expr("stock + ?", in.Delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var p model.Product
		if err := tx.Select("id", "stock").First(&p, in.ProductID).Error; err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: product %d", ErrNotFound, in.ProductID)
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: product %d has %d, need %d", ErrInsufficientStock, in.ProductID, p.Stock, -in.Delta)
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	entry := &model.StockEntry{
		ProductID:       in.ProductID,
		Quantity:        in.Delta,
		Reason:          in.Reason,
		Location:        in.Location,
		EntryDate:       date,
		Note:            in.Note,
		OrderID:         in.OrderID,
		ReversesEntryID: in.ReversesEntryID,
	}
	if err := tx.Create(entry).Error; err != nil {
		if in.ReversesEntryID != nil && isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: entry %d already reversed", ErrConflict, *in.ReversesEntryID)
		}
		return nil, err
	}

	var stock int64
	if err := tx.Model(&model.Product{}).Select("stock").Where("id = ?", in.ProductID).Scan(&stock).Error; err != nil {
		return nil, err
	}
	return &appendResult{Entry: entry, Stock: stock}, nil
}

// AdjustmentInput 人工库存调整。Direction 为空时 Quantity 取符号；否则 Quantity 必须为正。
type AdjustmentInput struct {
	ProductID uint
	Quantity  int64
	Direction model.StockDirection
	Location  string
	Note      string
	Date      time.Time
}

func (in AdjustmentInput) delta() (int64, error) {
	switch in.Direction {
	case "":
		if in.Quantity == 0 {
			return 0, fmt.Errorf("%w: quantity must not be zero", ErrValidation)
		}
		return in.Quantity, nil
	case model.DirectionIn, model.DirectionOut:
		if in.Quantity <= 0 {
			return 0, fmt.Errorf("%w: quantity must be > 0 when direction is set", ErrValidation)
		}
		if in.Direction == model.DirectionOut {
			return -in.Quantity, nil
		}
		return in.Quantity, nil
	default:
		return 0, fmt.Errorf("%w: direction must be in or out", ErrValidation)
	}
}

// LedgerWrite 台账写入结果，附带商品最新库存。
type LedgerWrite struct {
	Entry model.StockEntry `json:"entry"`
	Stock int64            `json:"stock"`
}

// AppendAdjustment 追加一条人工调整台账。
func (s *Service) AppendAdjustment(ctx context.Context, in AdjustmentInput) (*LedgerWrite, error) {
	ctx, span := tracer.Start(ctx, "ledger.append_adjustment")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", int64(in.ProductID)))

	delta, err := in.delta()
	if err != nil {
		return nil, err
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		note = "manual stock adjustment"
	}

	release, err := s.lockProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *appendResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err = appendEntry(tx, entryInput{
			ProductID: in.ProductID,
			Delta:     delta,
			Reason:    model.ReasonAdjustment,
			Location:  in.Location,
			Note:      note,
			Date:      in.Date,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.applyCache(ctx, out)
	return &LedgerWrite{Entry: *out.Entry, Stock: out.Stock}, nil
}

// ReverseEntry 追加一条冲销台账（数量取反）。只允许冲销期初/人工调整，且每条只能冲销一次。
func (s *Service) ReverseEntry(ctx context.Context, entryID uint, note string) (*LedgerWrite, error) {
	ctx, span := tracer.Start(ctx, "ledger.reverse_entry")
	defer span.End()
	span.SetAttributes(attribute.Int64("entry.id", int64(entryID)))

	var orig model.StockEntry
	if err := s.db.WithContext(ctx).First(&orig, entryID).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: stock entry %d", ErrNotFound, entryID)
		}
		return nil, err
	}
	if orig.Reason != model.ReasonInitial && orig.Reason != model.ReasonAdjustment {
		return nil, fmt.Errorf("%w: only initial or adjustment entries can be reversed, entry %d is %s", ErrValidation, entryID, orig.Reason)
	}
	if strings.TrimSpace(note) == "" {
		note = fmt.Sprintf("reversal of entry #%d", entryID)
	}

	release, err := s.lockProduct(ctx, orig.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *appendResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.StockEntry{}).Where("reverses_entry_id = ?", entryID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: entry %d already reversed", ErrConflict, entryID)
		}
		out, err = appendEntry(tx, entryInput{
			ProductID:       orig.ProductID,
			Delta:           -orig.Quantity,
			Reason:          model.ReasonReversal,
			Location:        orig.Location,
			Note:            note,
			ReversesEntryID: uintPtr(orig.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.applyCache(ctx, out)
	return &LedgerWrite{Entry: *out.Entry, Stock: out.Stock}, nil
}

// ListEntries 台账列表（最新在前），productID 为 0 表示全部商品。
func (s *Service) ListEntries(ctx context.Context, productID uint, limit int) ([]model.StockEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if productID != 0 {
		if err := s.ensureProduct(ctx, productID); err != nil {
			return nil, err
		}
		q = q.Where("product_id = ?", productID)
	}
	var list []model.StockEntry
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]uint, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ProductID)
	}
	var products []model.Product
	// 已软删除的商品也要显示名称
	if err := s.db.WithContext(ctx).Unscoped().Select("id", "name").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	for i := range list {
		list[i].ProductName = names[list[i].ProductID]
	}
	return list, nil
}

func (s *Service) ensureProduct(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	return nil
}
