package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// 库存缓存是一个 hash：
//
//	stock 缓存值，不存在表示未命中
//	base  stock 所基于的台账快照（该快照已包含的最大台账 ID）
//	seen  已推进过的最大台账 ID
//
// 回填只接受 base >= seen 的快照，否则说明快照读完之后又有台账提交，回填会把旧值写回去。

// luaApplyEntryOnce 同一条台账只推进一次；已包含在快照里的台账只打标记。
const luaApplyEntryOnce = `
local appliedKey = KEYS[1]
local stockKey = KEYS[2]
local entryID = tonumber(ARGV[1])
local delta = tonumber(ARGV[2])
local markTTL = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

if redis.call('SETNX', appliedKey, '1') == 0 then
  return 0
end
redis.call('EXPIRE', appliedKey, markTTL)

local seen = tonumber(redis.call('HGET', stockKey, 'seen') or '0')
if entryID > seen then
  redis.call('HSET', stockKey, 'seen', entryID)
end
redis.call('EXPIRE', stockKey, ttl)

local base = tonumber(redis.call('HGET', stockKey, 'base') or '0')
if entryID <= base then
  return 0
end
if redis.call('HEXISTS', stockKey, 'stock') == 1 then
  redis.call('HINCRBY', stockKey, 'stock', delta)
  return 1
end
return 2
`

// luaBackfill 快照比已推进的台账旧时拒绝写入。
const luaBackfill = `
local stockKey = KEYS[1]
local stock = ARGV[1]
local asOf = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local seen = tonumber(redis.call('HGET', stockKey, 'seen') or '0')
if seen > asOf then
  return 0
end
redis.call('HSET', stockKey, 'stock', stock, 'base', asOf, 'seen', asOf)
redis.call('EXPIRE', stockKey, ttl)
return 1
`

// 缓存推进结果
const (
	ApplySkipped = 0
	ApplyDone    = 1
	ApplyMissing = 2
)

const appliedMarkTTL = 7 * 24 * time.Hour

// tombstoneSeen 删除商品后写入的 seen，之后的任何回填都会被拒绝。
const tombstoneSeen = 1<<53 - 1

// StockCache 以台账为源的库存读缓存。
type StockCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewStockCache(rdb *rd.Client, ttl time.Duration) *StockCache {
	return &StockCache{rdb: rdb, ttl: ttl}
}

// ApplyDelta 按台账 ID 幂等推进缓存。
func (c *StockCache) ApplyDelta(ctx context.Context, entryID, productID uint, delta int64) error {
	_, err := c.ApplyEntry(ctx, entryID, productID, delta)
	return err
}

// ApplyEntry 同 ApplyDelta，额外返回推进结果（ApplySkipped/ApplyDone/ApplyMissing）。
func (c *StockCache) ApplyEntry(ctx context.Context, entryID, productID uint, delta int64) (int, error) {
	keys := []string{EntryAppliedKey(entryID), StockKey(productID)}
	return c.rdb.Eval(ctx, luaApplyEntryOnce, keys,
		int64(entryID), delta, int64(appliedMarkTTL/time.Second), c.ttlSeconds()).Int()
}

// SetStock 用截至 asOfEntry 的数据库快照回填缓存。stored=false 表示快照过旧被拒绝。
func (c *StockCache) SetStock(ctx context.Context, productID uint, stock int64, asOfEntry uint) (bool, error) {
	n, err := c.rdb.Eval(ctx, luaBackfill, []string{StockKey(productID)},
		stock, int64(asOfEntry), c.ttlSeconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetStock found=false 表示缓存未命中。
func (c *StockCache) GetStock(ctx context.Context, productID uint) (int64, bool, error) {
	n, err := c.rdb.HGet(ctx, StockKey(productID), "stock").Int64()
	if errors.Is(err, rd.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Invalidate 删除缓存值并留下墓碑，商品删除后使用。
func (c *StockCache) Invalidate(ctx context.Context, productID uint) error {
	key := StockKey(productID)
	pipe := c.rdb.TxPipeline()
	pipe.HDel(ctx, key, "stock", "base")
	pipe.HSet(ctx, key, "seen", int64(tombstoneSeen))
	pipe.Expire(ctx, key, time.Duration(c.ttlSeconds())*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *StockCache) ttlSeconds() int64 {
	s := int64(c.ttl / time.Second)
	if s <= 0 {
		s = int64(24 * time.Hour / time.Second)
	}
	return s
}
