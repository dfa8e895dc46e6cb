// Package rediscache keeps the institution profile in redis.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/setting"
)

const profileKey = "setting:profile"

// Connect returns a client for conf, or nil when no address is configured
// or the server cannot be reached; callers then run without a cache.
func Connect(ctx context.Context, conf *core.Config, logger core.Logger) *redis.Client {
	if conf.Redis.Addr == "" {
		logger.Info("redisAddr not set, caching disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn(fmt.Sprintf("redis ping(%s): %v, caching disabled", conf.Redis.Addr, err), err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

type ProfileCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ setting.Cache = (*ProfileCache)(nil)

func NewProfileCache(rdb *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{rdb: rdb, ttl: ttl}
}

func (c *ProfileCache) GetProfile(ctx context.Context) (setting.Profile, bool, error) {
	data, err := c.rdb.Get(ctx, profileKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return setting.Profile{}, false, nil
		}
		return setting.Profile{}, false, errors.Wrap(err, "redis get")
	}

	var p setting.Profile
	if err = json.Unmarshal(data, &p); err != nil {
		return setting.Profile{}, false, errors.Wrap(err, "decoding profile")
	}
	return p, true, nil
}

func (c *ProfileCache) SetProfile(ctx context.Context, p setting.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding profile")
	}
	return errors.Wrap(c.rdb.Set(ctx, profileKey, data, c.ttl).Err(), "redis set")
}

func (c *ProfileCache) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.rdb.Del(ctx, profileKey).Err(), "redis del")
}
