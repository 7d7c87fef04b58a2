package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/services"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

type SampleHandler struct {
	log           *logger.Logger
	ingestService services.IngestService
}

func NewSampleHandler(log *logger.Logger, ingestService services.IngestService) *SampleHandler {
	return &SampleHandler{
		log:           log.With("handler", "SampleHandler"),
		ingestService: ingestService,
	}
}

// POST /sha256/:hash
// A worker submits an analysis result: the full sample JSON plus the
// task_id that authorized it.
func (h *SampleHandler) Submit(c *gin.Context) {
	hash := c.Param("hash")

	var sub types.Submission
	decoder := json.NewDecoder(c.Request.Body)
	if err := decoder.Decode(&sub); err != nil {
		RespondError(c, apierr.InvalidUsage("unable to parse JSON body"))
		return
	}

	status, err := h.ingestService.Submit(c.Request.Context(), hash, &sub)
	if err != nil {
		h.log.Warn("Submission rejected", "hash_sha256", hash, "error", err)
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": status})
}

// GET /sha256/:hash, GET /md5/:hash, GET /sha1/:hash
func (h *SampleHandler) Get(hashType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		agg, err := h.ingestService.ByHash(c.Request.Context(), hashType, hash)
		if err != nil {
			RespondError(c, err)
			return
		}
		if agg == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "sample not found"})
			return
		}
		RespondOK(c, agg)
	}
}
