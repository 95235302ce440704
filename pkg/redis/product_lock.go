package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	rd "github.com/redis/go-redis/v9"
)

// ProductLocker 基于 redislock 的商品级互斥。
// 等待超过 wait 返回包装后的 redislock.ErrNotObtained。
type ProductLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewProductLocker(rdb *rd.Client, ttl, wait time.Duration) *ProductLocker {
	return &ProductLocker{locker: redislock.New(rdb), ttl: ttl, wait: wait}
}

func (l *ProductLocker) LockProduct(ctx context.Context, productID uint) (func(), error) {
	return l.obtain(ctx, ProductLockKey(productID))
}

// TryLock 不重试，拿不到立即返回 ErrNotObtained。用于定时对账等单实例任务。
func (l *ProductLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

const lockRetryInterval = 50 * time.Millisecond

func (l *ProductLocker) obtain(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	retries := int(l.wait / lockRetryInterval)
	lock, err := l.locker.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), retries),
	})
	// 等待预算用完时 redislock 返回的是 ctx 错误，统一成 ErrNotObtained
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = redislock.ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	// 释放不能用已取消的 waitCtx
	return func() { _ = lock.Release(context.Background()) }, nil
}
