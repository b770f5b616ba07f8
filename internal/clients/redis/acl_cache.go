package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/latticedb/lattice-backend/internal/platform/config"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
)

// AclCache keeps resolved accessible-acl-id sets for a short TTL. It is
// advisory: every error surfaces to the caller, who logs and falls through to
// the store.
type AclCache interface {
	GetIDs(ctx context.Context, key string) ([]int64, bool, error)
	SetIDs(ctx context.Context, key string, ids []int64) error
	Close() error
}

type aclCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewAclCache(cfg config.Redis, log *logger.Logger) (AclCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}

	ttl := time.Duration(cfg.AclCacheTTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &aclCache{log: log.With("client", "AclCache"), rdb: rdb, ttl: ttl}, nil
}

func (c *aclCache) GetIDs(ctx context.Context, key string) ([]int64, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *aclCache) SetIDs(ctx context.Context, key string, ids []int64) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *aclCache) Close() error {
	return c.rdb.Close()
}
