package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/http/dto"
	"mindgraph.app/grove/internal/service"
)

type StreamHandler struct {
	streams   service.StreamService
	snapshots service.SnapshotService
}

func NewStreamHandler(streams service.StreamService, snapshots service.SnapshotService) *StreamHandler {
	return &StreamHandler{streams: streams, snapshots: snapshots}
}

func (h *StreamHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondInvalid(c, err)
		return
	}

	stream, err := h.streams.Create(ctx, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"stream": dto.ToStreamResponse(stream)})
}

func (h *StreamHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	detail, err := h.snapshots.StreamDetail(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToStreamDetailResponse(detail))
}
