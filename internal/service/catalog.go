package service

import (
	"context"
	"fmt"
	"strings"

	"biz_manager/internal/config"
	"biz_manager/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductInput 商品基础信息。InitialStock 只在创建时生效，通过期初台账写入。
type ProductInput struct {
	Name         string
	Category     string
	Region       string
	Price        decimal.Decimal
	Description  string
	Brand        string
	Supplier     string
	SKU          string
	InitialStock int64
	Location     string
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}
	if in.InitialStock < 0 {
		return fmt.Errorf("%w: initial stock must be >= 0", ErrValidation)
	}
	return nil
}

func (in ProductInput) apply(p *model.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Category = in.Category
	p.Region = in.Region
	p.Price = in.Price
	p.Description = in.Description
	p.Brand = in.Brand
	p.Supplier = in.Supplier
	p.SKU = nil
	if sku := strings.TrimSpace(in.SKU); sku != "" {
		p.SKU = &sku
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	err := s.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

func (s *Service) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

// CreateProduct 创建商品；有期初库存时在同一事务内写一条 initial 台账。
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var p model.Product
	in.apply(&p)

	var out *appendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sku %q already exists", ErrConflict, in.SKU)
			}
			return err
		}
		if in.InitialStock == 0 {
			return nil
		}
		var err error
		out, err = appendEntry(tx, entryInput{
			ProductID: p.ID,
			Delta:     in.InitialStock,
			Reason:    model.ReasonInitial,
			Location:  in.Location,
			Note:      "initial stock on product creation",
		})
		if err != nil {
			return err
		}
		p.Stock = out.Stock
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil && s.cache != nil {
		if _, err := s.cache.SetStock(ctx, p.ID, 0, 0); err != nil {
			config.LogError(s.logger, "service", "CreateProduct", "seed stock cache", p.ID, err)
		}
	}
	s.applyCache(ctx, out)
	s.notify(ctx, Notice{
		Kind:      NoticeProductCreated,
		Title:     fmt.Sprintf("Product %q created", p.Name),
		ProductID: uintPtr(p.ID),
	})
	return &p, nil
}

// UpdateProduct 只更新基础信息，库存只能走台账。
func (s *Service) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	err = s.db.WithContext(ctx).Model(p).
		Select("name", "category", "region", "price", "description", "brand", "supplier", "sku").
		Updates(p).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %q already exists", ErrConflict, in.SKU)
		}
		return nil, err
	}
	s.notify(ctx, Notice{
		Kind:      NoticeProductUpdated,
		Title:     fmt.Sprintf("Product %q updated", p.Name),
		ProductID: uintPtr(p.ID),
	})
	return p, nil
}

// DeleteProduct 软删除，台账保留。
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(p).Error; err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, p.ID); err != nil {
			config.LogError(s.logger, "service", "DeleteProduct", "invalidate stock cache", p.ID, err)
		}
	}
	s.notify(ctx, Notice{
		Kind:      NoticeProductDeleted,
		Title:     fmt.Sprintf("Product %q deleted", p.Name),
		ProductID: uintPtr(p.ID),
	})
	return nil
}

// CustomerInput 客户信息
type CustomerInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	var list []model.Customer
	err := s.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*model.Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	c := &model.Customer{Name: strings.TrimSpace(in.Name), Email: in.Email, Phone: in.Phone, Address: in.Address}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id uint, in CustomerInput) (*model.Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	var c model.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer %d", ErrNotFound, id)
		}
		return nil, err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Email = in.Email
	c.Phone = in.Phone
	c.Address = in.Address
	if err := s.db.WithContext(ctx).Save(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCustomer 有订单引用的客户不允许删除。
func (s *Service) DeleteCustomer(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Customer
		if err := tx.First(&c, id).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: customer %d", ErrNotFound, id)
			}
			return err
		}
		var n int64
		if err := tx.Model(&model.Order{}).Where("customer_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: customer %d has %d orders", ErrConflict, id, n)
		}
		return tx.Delete(&c).Error
	})
}

// CustomerDetail 客户详情及订单历史（最新的在前）。
type CustomerDetail struct {
	model.Customer
	Orders     []*OrderView    `json:"orders"`
	OrderCount int             `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"` // 仅统计已完成订单
}

func (s *Service) GetCustomer(ctx context.Context, id uint) (*CustomerDetail, error) {
	var c model.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer %d", ErrNotFound, id)
		}
		return nil, err
	}
	var list []model.Order
	err := s.db.WithContext(ctx).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("customer_id = ?", id).
		Order("date DESC").Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	detail := &CustomerDetail{Customer: c, Orders: make([]*OrderView, 0, len(list)), TotalSpent: decimal.Zero}
	for _, o := range list {
		o.Customer = &c
		detail.Orders = append(detail.Orders, viewOf(o))
		if o.Status == model.OrderCompleted {
			detail.TotalSpent = detail.TotalSpent.Add(o.Amount)
		}
	}
	detail.OrderCount = len(detail.Orders)
	return detail, nil
}
