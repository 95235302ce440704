package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// SyncState 最近一次库存对账的摘要。
type SyncState struct {
	RanAt     time.Time `json:"ran_at"`
	Scanned   int       `json:"scanned"`
	Corrected int       `json:"corrected"`
	Trigger   string    `json:"trigger"` // manual / scheduled
}

// PutSyncState 覆盖保存对账摘要。
func PutSyncState(ctx context.Context, rdb *rd.Client, st SyncState) error {
	return rdb.HSet(ctx, SyncStateKey,
		"ran_at", st.RanAt.UTC().Format(time.RFC3339Nano),
		"scanned", st.Scanned,
		"corrected", st.Corrected,
		"trigger", st.Trigger,
	).Err()
}

// GetSyncState found=false 表示尚未对账过。
func GetSyncState(ctx context.Context, rdb *rd.Client) (SyncState, bool, error) {
	m, err := rdb.HGetAll(ctx, SyncStateKey).Result()
	if err != nil {
		return SyncState{}, false, err
	}
	if len(m) == 0 {
		return SyncState{}, false, nil
	}
	return parseSyncState(m), true, nil
}

func parseSyncState(m map[string]string) SyncState {
	var st SyncState
	st.RanAt, _ = time.Parse(time.RFC3339Nano, m["ran_at"])
	st.Scanned, _ = strconv.Atoi(m["scanned"])
	st.Corrected, _ = strconv.Atoi(m["corrected"])
	st.Trigger = m["trigger"]
	return st
}
