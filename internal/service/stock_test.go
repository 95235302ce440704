package service

import (
	"context"
	"testing"
	"time"

	rediskey "biz_manager/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingCache 在回填前执行一次 beforeSet，模拟读库与回填之间有订单完成。
type racingCache struct {
	*rediskey.StockCache
	beforeSet func()
}

func (c *racingCache) SetStock(ctx context.Context, productID uint, stock int64, asOfEntry uint) (bool, error) {
	if f := c.beforeSet; f != nil {
		c.beforeSet = nil
		f()
	}
	return c.StockCache.SetStock(ctx, productID, stock, asOfEntry)
}

func newRedisStockCache(t *testing.T) (*rediskey.StockCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rediskey.NewStockCache(rdb, time.Hour), mr
}

func TestReadStockDropsBackfillOlderThanLedger(t *testing.T) {
	base, _ := newRedisStockCache(t)
	cache := &racingCache{StockCache: base}
	s, gdb := setupService(t, WithStockCache(cache))
	ctx := context.Background()
	product := seedProduct(t, s, "Widget", 10)
	customer := seedCustomer(t, s)
	order, err := s.CreateOrder(ctx, CreateOrderInput{CustomerID: customer.ID, ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)

	cache.beforeSet = func() {
		_, err := s.SetOrderStatus(ctx, order.ID, "completed")
		require.NoError(t, err)
	}
	st, err := s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, st.Stock)
	assert.Equal(t, "db", st.Source)
	require.EqualValues(t, 6, stockOf(t, gdb, product.ID))

	_, found, err := base.GetStock(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, found)

	st, err = s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, StockReading{ProductID: product.ID, Stock: 6, Source: "db"}, *st)
	st, err = s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, StockReading{ProductID: product.ID, Stock: 6, Source: "cache"}, *st)

	_, err = s.SetOrderStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)
	st, err = s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, StockReading{ProductID: product.ID, Stock: 10, Source: "cache"}, *st)
}

func TestReadStockAfterDeleteIsNotFound(t *testing.T) {
	cache, mr := newRedisStockCache(t)
	s, _ := setupService(t, WithStockCache(cache))
	ctx := context.Background()
	product := seedProduct(t, s, "Widget", 10)

	_, err := s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	st, err := s.ReadStock(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, "cache", st.Source)

	require.NoError(t, s.DeleteProduct(ctx, product.ID))
	assert.Empty(t, mr.HGet(rediskey.StockKey(product.ID), "stock"))
	_, err = s.ReadStock(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.WarmStock(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWarmStockWithoutCache(t *testing.T) {
	s, _ := setupService(t)
	p := seedProduct(t, s, "Widget", 1)
	_, err := s.WarmStock(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrUnavailable)
}
