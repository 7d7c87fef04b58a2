package services

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
	"github.com/kurasuta/kurasuta-backend/internal/types"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

// TaskService drives the work queue: creation of typed work items, claims
// by workers, and completion. All coordination between workers goes through
// the task table; the service holds no state of its own.
type TaskService interface {
	Create(ctx context.Context, taskType, hash string, meta *types.TaskMeta) (*types.Task, error)
	Claim(ctx context.Context, req types.ClaimRequest) (*types.ClaimResponse, error)
	Complete(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error)
}

type taskService struct {
	log          *logger.Logger
	taskRepo     repos.TaskRepo
	consumerRepo repos.TaskConsumerRepo
	lease        time.Duration
	// runTx executes fn inside one database transaction.
	runTx func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

func NewTaskService(
	db *gorm.DB,
	log *logger.Logger,
	taskRepo repos.TaskRepo,
	consumerRepo repos.TaskConsumerRepo,
	lease time.Duration,
) TaskService {
	return &taskService{
		log:          log.With("service", "TaskService"),
		taskRepo:     taskRepo,
		consumerRepo: consumerRepo,
		lease:        lease,
		runTx: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return db.WithContext(ctx).Transaction(fn)
		},
	}
}

func (s *taskService) Create(ctx context.Context, taskType, hash string, meta *types.TaskMeta) (*types.Task, error) {
	if !types.IsSupportedTaskType(taskType) {
		return nil, apierr.InvalidUsage("Unsupported task type %q", taskType)
	}
	if err := utils.ValidateSHA256(hash); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"hash_sha256": hash}
	if meta != nil {
		if len(meta.Tags) > 0 {
			payload["tags"] = meta.Tags
		}
		if len(meta.FileNames) > 0 {
			payload["file_names"] = meta.FileNames
		}
		if meta.SourceID != nil {
			payload["source_id"] = *meta.SourceID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task, err := s.taskRepo.Create(ctx, nil, taskType, datatypes.JSON(raw))
	if err != nil {
		return nil, err
	}
	s.log.Info("Task created", "task_id", task.ID, "type", taskType, "hash_sha256", hash)
	return task, nil
}

// Claim walks the fixed global priority order restricted to the requested
// plugins and returns the first task claimed. Lower-priority types are only
// reached when every higher-priority type has nothing claimable.
func (s *taskService) Claim(ctx context.Context, req types.ClaimRequest) (*types.ClaimResponse, error) {
	if req.Name == "" {
		return nil, apierr.InvalidUsage(`Key "name" missing in request.`)
	}
	if len(req.Plugins) == 0 {
		return nil, apierr.InvalidUsage(`Key "plugins" missing in request.`)
	}
	allowed := make(map[string]bool, len(req.Plugins))
	for _, plugin := range req.Plugins {
		if !types.IsSupportedTaskType(plugin) {
			return nil, apierr.InvalidUsage("Unsupported plugin %q", plugin)
		}
		allowed[plugin] = true
	}

	consumer, err := s.consumerRepo.ByName(ctx, nil, req.Name)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, apierr.InvalidUsage("Consumer with name %q does not exist", req.Name)
	}

	for _, taskType := range types.TaskTypesByPriority() {
		if !allowed[taskType] {
			continue
		}
		var claimed *types.Task
		err := s.runTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			claimed, txErr = s.taskRepo.ClaimRandom(ctx, tx, taskType, consumer.ID, s.lease)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			s.log.Info("Task claimed", "task_id", claimed.ID, "type", claimed.Type, "consumer", req.Name)
			return &types.ClaimResponse{
				ID:      claimed.ID,
				Type:    claimed.Type,
				Payload: claimed.Payload,
			}, nil
		}
	}
	return nil, nil
}

func (s *taskService) Complete(ctx context.Context, tx *gorm.DB, id int64) (*types.Task, error) {
	task, err := s.taskRepo.Complete(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("Task completed", "task_id", task.ID, "type", task.Type)
	return task, nil
}
