package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Quota bounds the bytes an area may hold; zero fields are unlimited.
// Sizes count key length plus JSON value length.
type Quota struct {
	BytesPerItem int
	TotalBytes   int
}

// Browser storage limits
var (
	SyncQuota  = Quota{BytesPerItem: 8192, TotalBytes: 102400}
	LocalQuota = Quota{TotalBytes: 10 * 1024 * 1024}
)

type limitedArea struct {
	Area
	quota Quota
	mu    sync.Mutex
}

// Limited wraps area so writes that would exceed quota fail with ErrQuotaExceeded
func Limited(area Area, quota Quota) Area {
	return &limitedArea{Area: area, quota: quota}
}

func (a *limitedArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if a.quota.BytesPerItem > 0 {
		for key, value := range items {
			if size := len(key) + len(value); size > a.quota.BytesPerItem {
				return fmt.Errorf("%w: %s is %d bytes, limit %d per item", ErrQuotaExceeded, key, size, a.quota.BytesPerItem)
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.quota.TotalBytes > 0 {
		current, err := a.Area.Get(ctx)
		if err != nil {
			return err
		}
		for key, value := range items {
			current[key] = value
		}
		total := 0
		for key, value := range current {
			total += len(key) + len(value)
		}
		if total > a.quota.TotalBytes {
			return fmt.Errorf("%w: area %s would hold %d bytes, limit %d", ErrQuotaExceeded, a.Name(), total, a.quota.TotalBytes)
		}
	}

	return a.Area.Set(ctx, items)
}
