package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
	"github.com/kurasuta/kurasuta-backend/internal/services"
	"github.com/kurasuta/kurasuta-backend/internal/types"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

type TaskHandler struct {
	log         *logger.Logger
	taskService services.TaskService
	sourceRepo  repos.SampleSourceRepo
}

func NewTaskHandler(log *logger.Logger, taskService services.TaskService, sourceRepo repos.SampleSourceRepo) *TaskHandler {
	return &TaskHandler{
		log:         log.With("handler", "TaskHandler"),
		taskService: taskService,
		sourceRepo:  sourceRepo,
	}
}

// POST /task
// A worker asks for work: {"name": ..., "plugins": [...]}. An empty object
// means nothing is pending for the requested plugins.
func (h *TaskHandler) Claim(c *gin.Context) {
	var req types.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.InvalidUsage("unable to parse JSON body"))
		return
	}
	resp, err := h.taskService.Claim(c.Request.Context(), req)
	if err != nil {
		h.log.Warn("Claim failed", "consumer", req.Name, "error", err)
		RespondError(c, err)
		return
	}
	if resp == nil {
		RespondOK(c, gin.H{})
		return
	}
	RespondOK(c, resp)
}

type createTaskRequest struct {
	Type             string   `json:"type"`
	HashSHA256       string   `json:"hash_sha256"`
	Tags             []string `json:"tags,omitempty"`
	FileNames        []string `json:"file_names,omitempty"`
	SourceIdentifier string   `json:"source_identifier,omitempty"`
}

// POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.InvalidUsage("unable to parse JSON body"))
		return
	}
	// Malformed input is rejected before any database work, including the
	// source lookup.
	if !types.IsSupportedTaskType(req.Type) {
		RespondError(c, apierr.InvalidUsage("Unsupported task type %q", req.Type))
		return
	}
	if err := utils.ValidateSHA256(req.HashSHA256); err != nil {
		RespondError(c, err)
		return
	}

	meta := &types.TaskMeta{
		Tags:      req.Tags,
		FileNames: req.FileNames,
	}
	if req.SourceIdentifier != "" {
		sourceID, err := h.resolveSource(c.Request.Context(), req.SourceIdentifier)
		if err != nil {
			RespondError(c, err)
			return
		}
		meta.SourceID = &sourceID
	}

	task, err := h.taskService.Create(c.Request.Context(), req.Type, req.HashSHA256, meta)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"id": task.ID})
}

func (h *TaskHandler) resolveSource(ctx context.Context, identifier string) (int64, error) {
	source, err := h.sourceRepo.ByIdentifier(ctx, nil, identifier)
	if err != nil {
		return 0, err
	}
	if source == nil {
		return 0, apierr.InvalidUsage("sample source identifier %q not found", identifier)
	}
	return source.ID, nil
}
