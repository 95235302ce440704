package service

import (
	"context"
	"errors"
	"fmt"

	"biz_manager/internal/config"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("biz_manager/internal/service")

// Notifier 通知写入（fire-and-forget），实现可以直接落库，也可以写事件流。
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// StockCache 库存读缓存，只在事务提交后推进。
// SetStock 的 asOfEntry 是快照包含的最大台账 ID，比已推进台账旧的快照必须被拒绝。
type StockCache interface {
	ApplyDelta(ctx context.Context, entryID, productID uint, delta int64) error
	SetStock(ctx context.Context, productID uint, stock int64, asOfEntry uint) (stored bool, err error)
	GetStock(ctx context.Context, productID uint) (stock int64, found bool, err error)
	Invalidate(ctx context.Context, productID uint) error
}

// Locker 按商品串行化库存迁移。争用超时需返回 redislock.ErrNotObtained（可包装）。
type Locker interface {
	LockProduct(ctx context.Context, productID uint) (release func(), err error)
}

// Service 订单/台账/对账核心。
type Service struct {
	db       *gorm.DB
	logger   *logrus.Logger
	notifier Notifier
	cache    StockCache
	locker   Locker
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithStockCache(c StockCache) Option { return func(s *Service) { s.cache = c } }

func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// New 默认使用直接落库的通知器。
func New(db *gorm.DB, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{db: db, logger: logger}
	s.notifier = NewDBNotifier(db)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockProduct 获取商品锁。Redis 不可用时降级为无锁（数据库条件更新仍然兜底），
// 只有锁争用超时才返回 ErrBusy。
func (s *Service) lockProduct(ctx context.Context, productID uint) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.LockProduct(ctx, productID)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: product %d is locked by another update", ErrBusy, productID)
	}
	s.logger.WithFields(logrus.Fields{
		"module":     "service",
		"product_id": productID,
	}).Warn("product lock unavailable; proceeding without lock: " + err.Error())
	return noop, nil
}

func (s *Service) applyCache(ctx context.Context, entries ...*appendResult) {
	if s.cache == nil {
		return
	}
	for _, r := range entries {
		if r == nil {
			continue
		}
		if err := s.cache.ApplyDelta(ctx, r.Entry.ID, r.Entry.ProductID, r.Entry.Quantity); err != nil {
			config.LogError(s.logger, "service", "applyCache", "stock cache delta", r.Entry.ID, err)
		}
	}
}

func (s *Service) notify(ctx context.Context, n Notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n.withDefaults()); err != nil {
		config.LogError(s.logger, "service", "notify", "notification dropped", n.Kind, err)
	}
}
