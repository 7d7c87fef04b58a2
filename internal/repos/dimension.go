package repos

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/clients"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

// DimensionRepo is the interner: it maps a recurring value to its stable
// integer id, inserting on first sight. Both operations are single atomic
// upserts. Two concurrent ingestions interning the same new value must end
// up with the same id, so look-then-insert is not acceptable here.
type DimensionRepo interface {
	Ensure(ctx context.Context, tx *gorm.DB, table, value string) (int64, error)
	EnsurePair(ctx context.Context, tx *gorm.DB, table string, contentID *int64, contentStr *string) (int64, error)
}

type dimensionRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	cache *clients.DimensionCache
}

func NewDimensionRepo(db *gorm.DB, baseLog *logger.Logger, cache *clients.DimensionCache) DimensionRepo {
	return &dimensionRepo{
		db:    db,
		log:   baseLog.With("repo", "DimensionRepo"),
		cache: cache,
	}
}

func (r *dimensionRepo) Ensure(ctx context.Context, tx *gorm.DB, table, value string) (int64, error) {
	if !types.IsDimensionTable(table) {
		return 0, fmt.Errorf("unknown dimension table %q", table)
	}
	if id, ok := r.cache.Get(ctx, table, value); ok {
		return id, nil
	}

	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// The no-op DO UPDATE makes the conflicting row visible to RETURNING,
	// so both the insert and the fetch-existing case are one statement.
	sql := fmt.Sprintf(
		`INSERT INTO %q (content) VALUES (?) ON CONFLICT (content) DO UPDATE SET content = EXCLUDED.content RETURNING id`,
		table,
	)
	var id int64
	if err := transaction.WithContext(ctx).Raw(sql, value).Scan(&id).Error; err != nil {
		return 0, err
	}
	r.cache.Set(ctx, table, value, id)
	return id, nil
}

func (r *dimensionRepo) EnsurePair(ctx context.Context, tx *gorm.DB, table string, contentID *int64, contentStr *string) (int64, error) {
	if !types.IsPairDimensionTable(table) {
		return 0, fmt.Errorf("unknown pair dimension table %q", table)
	}
	cacheKey := pairCacheKey(contentID, contentStr)
	if id, ok := r.cache.Get(ctx, table, cacheKey); ok {
		return id, nil
	}

	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Identity is the (content_id, content_str) pair with either half
	// possibly null; the conflict target mirrors the COALESCE unique index.
	sql := fmt.Sprintf(
		`INSERT INTO %q (content_id, content_str) VALUES (?, ?)
		 ON CONFLICT ((COALESCE(content_id, -1)), (COALESCE(content_str, '')))
		 DO UPDATE SET content_id = EXCLUDED.content_id
		 RETURNING id`,
		table,
	)
	var id int64
	if err := transaction.WithContext(ctx).Raw(sql, contentID, contentStr).Scan(&id).Error; err != nil {
		return 0, err
	}
	r.cache.Set(ctx, table, cacheKey, id)
	return id, nil
}

func pairCacheKey(contentID *int64, contentStr *string) string {
	key := "\x00"
	if contentID != nil {
		key = strconv.FormatInt(*contentID, 10)
	}
	key += "|"
	if contentStr != nil {
		key += *contentStr
	}
	return key
}
