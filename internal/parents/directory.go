package parents

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "parents:v1:"

// Source loads parents from the system of record.
type Source interface {
	GetParent(ctx context.Context, id int64) (Parent, error)
}

// Directory resolves parents through a Redis JSON cache. Concurrent lookups
// of the same parent share one load.
type Directory struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewDirectory constructs a Directory. A nil client disables caching.
func NewDirectory(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Directory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{source: source, client: client, ttl: ttl, logger: logger}
}

// GetParent returns the parent contact record.
func (d *Directory) GetParent(ctx context.Context, id int64) (Parent, error) {
	key := strconv.FormatInt(id, 10)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.load(ctx, id)
	})
	if err != nil {
		return Parent{}, err
	}
	return v.(Parent), nil
}

// Invalidate drops the cached entry for id.
func (d *Directory) Invalidate(ctx context.Context, id int64) error {
	if d.client == nil {
		return nil
	}
	return d.client.Del(ctx, cacheKey(id)).Err()
}

func (d *Directory) load(ctx context.Context, id int64) (Parent, error) {
	if d.client != nil {
		raw, err := d.client.Get(ctx, cacheKey(id)).Bytes()
		switch {
		case err == nil:
			var p Parent
			if err := json.Unmarshal(raw, &p); err == nil {
				return p, nil
			}
			d.logger.Warn("parent cache decode", slog.Int64("parent_id", id))
		case !errors.Is(err, redis.Nil):
			d.logger.Warn("parent cache read", slog.Int64("parent_id", id), slog.Any("error", err))
		}
	}

	p, err := d.source.GetParent(ctx, id)
	if err != nil {
		return Parent{}, err
	}

	if d.client != nil {
		raw, err := json.Marshal(p)
		if err == nil {
			err = d.client.Set(ctx, cacheKey(id), raw, d.ttl).Err()
		}
		if err != nil {
			d.logger.Warn("parent cache write", slog.Int64("parent_id", id), slog.Any("error", err))
		}
	}
	return p, nil
}

func cacheKey(id int64) string {
	return cachePrefix + strconv.FormatInt(id, 10)
}
