package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

type TaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, taskType string, payload datatypes.JSON) (*types.Task, error)
	ByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error)
	// ClaimRandom picks one claimable task of the given type uniformly at
	// random and assigns it to the consumer. Must run inside a transaction.
	ClaimRandom(ctx context.Context, tx *gorm.DB, taskType string, consumerID int64, lease time.Duration) (*types.Task, error)
	Complete(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *taskRepo) Create(ctx context.Context, tx *gorm.DB, taskType string, payload datatypes.JSON) (*types.Task, error) {
	task := &types.Task{
		Type:    taskType,
		Payload: payload,
	}
	if err := r.handle(tx).WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepo) ByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error) {
	var task types.Task
	err := r.handle(tx).WithContext(ctx).First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ClaimRandom selects with ORDER BY random() ... FOR UPDATE SKIP LOCKED, so
// concurrent claimers never race for the same row and never observe a task
// already assigned elsewhere. A lease of zero disables reclaim; otherwise a
// task assigned longer ago than the lease and still incomplete counts as
// claimable again.
func (r *taskRepo) ClaimRandom(ctx context.Context, tx *gorm.DB, taskType string, consumerID int64, lease time.Duration) (*types.Task, error) {
	transaction := r.handle(tx).WithContext(ctx)

	var tasks []types.Task
	err := transaction.Raw(`
		SELECT * FROM task
		WHERE (type = ?)
		  AND (completed_at IS NULL)
		  AND (
			(assigned_at IS NULL)
			OR ((? > 0) AND (assigned_at < now() - make_interval(secs => ?)))
		  )
		ORDER BY random()
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, taskType, int64(lease.Seconds()), int64(lease.Seconds())).Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	task := tasks[0]

	now := time.Now()
	err = transaction.Model(&types.Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"assigned_at": now,
			"consumer_id": consumerID,
		}).Error
	if err != nil {
		return nil, err
	}
	task.AssignedAt = &now
	task.ConsumerID = &consumerID
	return &task, nil
}

func (r *taskRepo) Complete(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error) {
	transaction := r.handle(tx)

	task, err := r.ByID(ctx, transaction, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apierr.InvalidUsage("Task with id %d does not exist", id)
	}

	err = transaction.WithContext(ctx).Model(&types.Task{}).
		Where("id = ?", id).
		Update("completed_at", time.Now()).Error
	if err != nil {
		return nil, err
	}
	return task, nil
}
