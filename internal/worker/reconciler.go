package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"biz_manager/internal/config"
	"biz_manager/internal/service"
	rediskey "biz_manager/pkg/redis"

	"github.com/bsm/redislock"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// 对账触发来源
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

const reconcileLockTTL = time.Minute

// SingletonLocker 跨实例互斥，拿不到锁返回（包装后的）redislock.ErrNotObtained。
type SingletonLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Reconciler 手动/定时对账入口，记录最近一次结果。
type Reconciler struct {
	svc    *service.Service
	rdb    *rd.Client
	locker SingletonLocker
	logger *logrus.Logger

	mu   sync.Mutex
	last *rediskey.SyncState
}

// NewReconciler rdb、locker 都可以为 nil（未启用 Redis）。
func NewReconciler(svc *service.Service, rdb *rd.Client, locker SingletonLocker, logger *logrus.Logger) *Reconciler {
	return &Reconciler{svc: svc, rdb: rdb, locker: locker, logger: logger}
}

// RunOnce 执行一次对账。另一实例正在对账时返回 service.ErrBusy。
func (r *Reconciler) RunOnce(ctx context.Context, trigger string) (*service.ReconcileResult, error) {
	if r.locker != nil {
		release, err := r.locker.TryLock(ctx, rediskey.ReconcileLockKey, reconcileLockTTL)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, redislock.ErrNotObtained):
			return nil, fmt.Errorf("%w: reconciliation already running", service.ErrBusy)
		default:
			r.logger.WithField("module", "worker").Warn("reconcile lock unavailable; running unguarded: " + err.Error())
		}
	}

	res, err := r.svc.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	st := rediskey.SyncState{
		RanAt:     res.RanAt,
		Scanned:   res.Scanned,
		Corrected: len(res.Corrected),
		Trigger:   trigger,
	}
	r.mu.Lock()
	r.last = &st
	r.mu.Unlock()
	if r.rdb != nil {
		if err := rediskey.PutSyncState(ctx, r.rdb, st); err != nil {
			config.LogError(r.logger, "worker", "RunOnce", "save sync state", trigger, err)
		}
	}
	return res, nil
}

// Last 最近一次对账摘要。优先读 Redis（多实例共享），失败时退回本进程记录。
func (r *Reconciler) Last(ctx context.Context) (rediskey.SyncState, bool) {
	if r.rdb != nil {
		st, found, err := rediskey.GetSyncState(ctx, r.rdb)
		if err == nil && found {
			return st, true
		}
		if err != nil {
			config.LogError(r.logger, "worker", "Last", "load sync state", nil, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return rediskey.SyncState{}, false
	}
	return *r.last, true
}

// Run 按固定间隔对账，直到 ctx 取消。
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.RunOnce(ctx, TriggerScheduled)
			if errors.Is(err, service.ErrBusy) {
				r.logger.WithField("module", "worker").Debug("reconcile skipped: another instance is running")
				continue
			}
			if err != nil && ctx.Err() == nil {
				config.LogError(r.logger, "worker", "Run", "scheduled reconcile", nil, err)
			}
		}
	}
}
