package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Cyvadra/marketminds/internal/config"
	"github.com/Cyvadra/marketminds/internal/storage"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Areas holds the sync and local storage areas of an installation
type Areas struct {
	Sync  storage.Area
	Local storage.Area

	closers []io.Closer
}

// OpenAreas builds both areas from the storage configuration. db is only
// used by the sqlite backend and may be nil otherwise.
func OpenAreas(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Areas, error) {
	areas := &Areas{}
	var rdb *redis.Client

	open := func(name string, ac config.AreaConfig, quota storage.Quota) (storage.Area, error) {
		var area storage.Area
		switch ac.Backend {
		case config.BackendMemory:
			m := storage.NewMemoryArea(name)
			areas.closers = append(areas.closers, m)
			area = m
		case config.BackendFile:
			f, err := storage.NewFileArea(name, ac.Path)
			if err != nil {
				return nil, err
			}
			areas.closers = append(areas.closers, f)
			area = f
		case config.BackendSQLite:
			if db == nil {
				return nil, fmt.Errorf("storage.%s: sqlite backend needs a database", name)
			}
			s := storage.NewSQLArea(name, db)
			areas.closers = append(areas.closers, s)
			area = s
		case config.BackendRedis:
			if rdb == nil {
				client, err := storage.ConnectRedis(ctx, cfg.Redis.URL)
				if err != nil {
					return nil, err
				}
				rdb = client
			}
			r, err := storage.NewRedisArea(ctx, name, cfg.Redis.KeyPrefix, rdb)
			if err != nil {
				return nil, err
			}
			areas.closers = append(areas.closers, r)
			area = r
		default:
			return nil, fmt.Errorf("storage.%s: unknown backend %q", name, ac.Backend)
		}

		if ac.Quota {
			area = storage.Limited(area, quota)
		}
		return area, nil
	}

	var err error
	if areas.Sync, err = open(storage.AreaSync, cfg.Storage.Sync, storage.SyncQuota); err == nil {
		areas.Local, err = open(storage.AreaLocal, cfg.Storage.Local, storage.LocalQuota)
	}
	if rdb != nil {
		// The client outlives both redis areas.
		areas.closers = append(areas.closers, rdb)
	}
	if err != nil {
		areas.Close()
		return nil, err
	}
	return areas, nil
}

// Close releases every area and the redis client if one was opened
func (a *Areas) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
