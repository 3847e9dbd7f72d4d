package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/http/dto"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
)

type CommitHandler struct {
	snapshots service.SnapshotService
}

func NewCommitHandler(snapshots service.SnapshotService) *CommitHandler {
	return &CommitHandler{snapshots: snapshots}
}

func (h *CommitHandler) Commit(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	result, err := h.snapshots.Commit(ctx, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	// Auto commits skipping for an empty or unchanged tree are routine; give
	// pollers a body-less 204 instead of a skip report.
	if !result.Committed && req.Reason == model.SnapshotReasonAuto &&
		(result.SkippedReason == model.CommitSkippedNoNodes || result.SkippedReason == model.CommitSkippedNoChanges) {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, dto.ToCommitResponse(result))
}
