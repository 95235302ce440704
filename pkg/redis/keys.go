package redis

import "fmt"

// StockKey 商品库存读缓存。
func StockKey(productID uint) string {
	return fmt.Sprintf("biz:stock:%d", productID)
}

// EntryAppliedKey 标记某条台账是否已推进过缓存。
func EntryAppliedKey(entryID uint) string {
	return fmt.Sprintf("biz:stock:applied:%d", entryID)
}

// ProductLockKey 商品级库存迁移锁。
func ProductLockKey(productID uint) string {
	return fmt.Sprintf("biz:lock:product:%d", productID)
}

// ReconcileLockKey 多实例下只允许一个对账任务同时运行。
const ReconcileLockKey = "biz:lock:reconcile"

// SyncStateKey 最近一次库存对账结果。
const SyncStateKey = "biz:stock:sync:last"
