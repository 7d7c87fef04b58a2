package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

// DimensionCache is a read-through cache of dimension value → id lookups.
// Dimension ids are immutable once assigned, so entries never go stale and
// carry no TTL. A nil *DimensionCache is valid and behaves as a permanent
// miss, which keeps Redis strictly optional.
type DimensionCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewDimensionCache(log *logger.Logger) (*DimensionCache, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &DimensionCache{
		log: log.With("client", "DimensionCache"),
		rdb: rdb,
	}, nil
}

func cacheKey(table, value string) string {
	return "dim:" + table + ":" + value
}

func (c *DimensionCache) Get(ctx context.Context, table, value string) (int64, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(table, value)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c *DimensionCache) Set(ctx context.Context, table, value string, id int64) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(table, value), strconv.FormatInt(id, 10), 0).Err(); err != nil {
		c.log.Warn("Failed to cache dimension id", "table", table, "error", err)
	}
}

func (c *DimensionCache) Close() {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Close()
}
