package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"biz_manager/internal/db"
	"biz_manager/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试独立的内存库，避免互相干扰
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	gdb := setupTestDB(t)
	return New(gdb, quietLogger(), opts...), gdb
}

func seedProduct(t *testing.T, s *Service, name string, stock int64) *model.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), ProductInput{
		Name:         name,
		Category:     "general",
		Region:       "north",
		Price:        decimal.NewFromInt(5),
		InitialStock: stock,
	})
	require.NoError(t, err)
	return p
}

func seedCustomer(t *testing.T, s *Service) *model.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), CustomerInput{Name: "Acme"})
	require.NoError(t, err)
	return c
}

func stockOf(t *testing.T, gdb *gorm.DB, productID uint) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, gdb.Unscoped().First(&p, productID).Error)
	return p.Stock
}

func entriesOf(t *testing.T, gdb *gorm.DB, productID uint, reasons ...model.EntryReason) []model.StockEntry {
	t.Helper()
	var list []model.StockEntry
	q := gdb.Where("product_id = ?", productID).Order("id")
	if len(reasons) > 0 {
		q = q.Where("reason IN ?", reasons)
	}
	require.NoError(t, q.Find(&list).Error)
	return list
}

type fakeCache struct {
	mu          sync.Mutex
	deltas      map[uint]int64
	stocks      map[uint]int64
	asOf        map[uint]uint
	invalidated map[uint]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		deltas:      map[uint]int64{},
		stocks:      map[uint]int64{},
		asOf:        map[uint]uint{},
		invalidated: map[uint]bool{},
	}
}

func (f *fakeCache) ApplyDelta(_ context.Context, _ uint, productID uint, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas[productID] += delta
	return nil
}

func (f *fakeCache) SetStock(_ context.Context, productID uint, stock int64, asOfEntry uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stocks[productID] = stock
	f.asOf[productID] = asOfEntry
	return true, nil
}

func (f *fakeCache) GetStock(_ context.Context, productID uint) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, found := f.stocks[productID]
	return n, found, nil
}

func (f *fakeCache) Invalidate(_ context.Context, productID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stocks, productID)
	f.invalidated[productID] = true
	return nil
}

type fakeLocker struct {
	err      error
	locked   int
	released int
}

func (f *fakeLocker) LockProduct(_ context.Context, _ uint) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked++
	return func() { f.released++ }, nil
}
