package service

import (
	"context"
	"fmt"
	"time"

	"biz_manager/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// OrderView 对外返回的订单视图，带客户/商品名称与剩余库存。
type OrderView struct {
	model.Order
	CustomerName   string `json:"customer_name"`
	ProductName    string `json:"product_name"`
	RemainingStock *int64 `json:"remaining_stock,omitempty"`
}

func newOrderView(o model.Order, customerName, productName string, stock *int64) *OrderView {
	return &OrderView{Order: o, CustomerName: customerName, ProductName: productName, RemainingStock: stock}
}

// CreateOrderInput 创建订单参数。Amount 为空时按 price * quantity 计算。
type CreateOrderInput struct {
	CustomerID uint
	ProductID  uint
	Quantity   int64
	Amount     *decimal.Decimal
	Status     string
	Date       time.Time
	Category   string
	Region     string
}

// CreateOrder 创建订单。初始状态为 completed 时在同一事务内走完成出库逻辑，其它状态不动库存。
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderView, error) {
	ctx, span := tracer.Start(ctx, "order.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", int64(in.ProductID)),
		attribute.Int64("order.quantity", in.Quantity),
	)

	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be >= 0", ErrValidation)
	}
	status := model.OrderProcessing
	if in.Status != "" {
		st, err := model.ParseOrderStatus(in.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		status = st
	}
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	if status == model.OrderCompleted {
		release, err := s.lockProduct(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var (
		order    model.Order
		customer model.Customer
		product  model.Product
		out      *appendResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&customer, in.CustomerID).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: customer %d", ErrNotFound, in.CustomerID)
			}
			return err
		}
		if err := tx.First(&product, in.ProductID).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: product %d", ErrNotFound, in.ProductID)
			}
			return err
		}

		amount := product.Price.Mul(decimal.NewFromInt(in.Quantity))
		if in.Amount != nil {
			amount = *in.Amount
		}
		order = model.Order{
			CustomerID: customer.ID,
			ProductID:  product.ID,
			Quantity:   in.Quantity,
			Amount:     amount,
			Status:     status,
			Date:       date,
			Category:   firstNonEmpty(in.Category, product.Category),
			Region:     firstNonEmpty(in.Region, product.Region),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		if status == model.OrderCompleted {
			var err error
			out, err = appendEntry(tx, outboundFor(order))
			return err
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stock := product.Stock
	if out != nil {
		stock = out.Stock
		s.applyCache(ctx, out)
		s.notify(ctx, orderNotice(order, product.Name))
	}
	return newOrderView(order, customer.Name, product.Name, &stock), nil
}

// SetOrderStatus 订单状态迁移。进入 completed 出库，离开 completed 回库，其它组合不动库存；
// 状态更新与台账/库存在同一事务内，并用旧状态做 compare-and-set，防止并发重复计数。
func (s *Service) SetOrderStatus(ctx context.Context, orderID uint, rawStatus string) (*OrderView, error) {
	ctx, span := tracer.Start(ctx, "order.set_status")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", int64(orderID)),
		attribute.String("order.requested_status", rawStatus),
	)

	to, err := model.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var head model.Order
	if err := s.db.WithContext(ctx).Select("id", "product_id").First(&head, orderID).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	release, err := s.lockProduct(ctx, head.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		order    model.Order
		product  model.Product
		customer model.Customer
		from     model.OrderStatus
		out      *appendResult
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if err := tx.First(&product, order.ProductID).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: product %d", ErrNotFound, order.ProductID)
			}
			return err
		}
		// 客户可能已被删除，名称仅用于展示
		if err := tx.Select("id", "name").First(&customer, order.CustomerID).Error; err != nil && !isNotFound(err) {
			return err
		}

		stored := order.Status
		from = stored
		if st, err := model.ParseOrderStatus(string(stored)); err == nil {
			from = st
		}

		switch model.TransitionEffect(from, to) {
		case model.EffectOutbound:
			out, err = appendEntry(tx, outboundFor(order))
		case model.EffectInbound:
			out, err = appendEntry(tx, entryInput{
				ProductID: order.ProductID,
				Delta:     order.Quantity,
				Reason:    model.ReasonOrderReverted,
				Note:      fmt.Sprintf("return for order #%d (%s -> %s)", order.ID, from, to),
				OrderID:   uintPtr(order.ID),
			})
		}
		if err != nil {
			return err
		}

		if stored != to {
			res := tx.Model(&model.Order{}).
				Where("id = ? AND status = ?", order.ID, stored).
				Update("status", to)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: order %d status changed concurrently", ErrConflict, order.ID)
			}
		}
		order.Status = to
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stock := product.Stock
	if out != nil {
		stock = out.Stock
		s.applyCache(ctx, out)
	}
	if from != to && (to == model.OrderCompleted || to == model.OrderCancelled) {
		s.notify(ctx, orderNotice(order, product.Name))
	}
	s.logger.WithFields(logrus.Fields{
		"module":   "service",
		"order_id": order.ID,
		"from":     from,
		"to":       to,
		"stock":    stock,
	}).Info("order status updated")

	return newOrderView(order, customer.Name, product.Name, &stock), nil
}

// GetOrder 查询单个订单。
func (s *Service) GetOrder(ctx context.Context, id uint) (*OrderView, error) {
	var o model.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&o, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return nil, err
	}
	return viewOf(o), nil
}

// ListOrders 最新的在前。
func (s *Service) ListOrders(ctx context.Context) ([]*OrderView, error) {
	var list []model.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	out := make([]*OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, viewOf(o))
	}
	return out, nil
}

func viewOf(o model.Order) *OrderView {
	var customerName, productName string
	var stock *int64
	if o.Customer != nil {
		customerName = o.Customer.Name
	}
	if o.Product != nil {
		productName = o.Product.Name
		st := o.Product.Stock
		stock = &st
	}
	return newOrderView(o, customerName, productName, stock)
}

func outboundFor(o model.Order) entryInput {
	return entryInput{
		ProductID: o.ProductID,
		Delta:     -o.Quantity,
		Reason:    model.ReasonOrderCompleted,
		Note:      fmt.Sprintf("export for order #%d", o.ID),
		OrderID:   uintPtr(o.ID),
	}
}

func orderNotice(o model.Order, productName string) Notice {
	kind := NoticeOrderCancelled
	title := fmt.Sprintf("Order #%d cancelled", o.ID)
	if o.Status == model.OrderCompleted {
		kind = NoticeOrderCompleted
		title = fmt.Sprintf("Order #%d completed: %d x %s", o.ID, o.Quantity, productName)
	}
	return Notice{
		Kind:      kind,
		Title:     title,
		OrderID:   uintPtr(o.ID),
		ProductID: uintPtr(o.ProductID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
