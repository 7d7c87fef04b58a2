package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

type TaskConsumerRepo interface {
	ByName(ctx context.Context, tx *gorm.DB, name string) (*types.TaskConsumer, error)
}

type taskConsumerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskConsumerRepo(db *gorm.DB, baseLog *logger.Logger) TaskConsumerRepo {
	return &taskConsumerRepo{db: db, log: baseLog.With("repo", "TaskConsumerRepo")}
}

func (r *taskConsumerRepo) ByName(ctx context.Context, tx *gorm.DB, name string) (*types.TaskConsumer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var consumer types.TaskConsumer
	err := transaction.WithContext(ctx).Where("name = ?", name).First(&consumer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &consumer, nil
}

type SampleSourceRepo interface {
	ByIdentifier(ctx context.Context, tx *gorm.DB, identifier string) (*types.SampleSource, error)
}

type sampleSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSampleSourceRepo(db *gorm.DB, baseLog *logger.Logger) SampleSourceRepo {
	return &sampleSourceRepo{db: db, log: baseLog.With("repo", "SampleSourceRepo")}
}

func (r *sampleSourceRepo) ByIdentifier(ctx context.Context, tx *gorm.DB, identifier string) (*types.SampleSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var source types.SampleSource
	err := transaction.WithContext(ctx).Where("identifier = ?", identifier).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

type APIKeyRepo interface {
	Exists(ctx context.Context, tx *gorm.DB, key string) (bool, error)
}

type apiKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAPIKeyRepo(db *gorm.DB, baseLog *logger.Logger) APIKeyRepo {
	return &apiKeyRepo{db: db, log: baseLog.With("repo", "APIKeyRepo")}
}

func (r *apiKeyRepo) Exists(ctx context.Context, tx *gorm.DB, key string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).Model(&types.APIKey{}).
		Where("content = ?", key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 1, nil
}
