package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/http/dto"
	"mindgraph.app/grove/internal/service"
)

type NodeHandler struct {
	graph      service.GraphService
	enrichment service.EnrichmentService
}

func NewNodeHandler(graph service.GraphService, enrichment service.EnrichmentService) *NodeHandler {
	return &NodeHandler{graph: graph, enrichment: enrichment}
}

func (h *NodeHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondInvalid(c, errors.New("text must not be empty"))
		return
	}

	node, err := h.graph.AddNode(ctx, c.Param("id"), text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"node": dto.ToNodeResponse(node)})
}

func (h *NodeHandler) Override(c *gin.Context) {
	ctx := c.Request.Context()

	nodeID, err := nodeIDParam(c)
	if err != nil {
		return
	}

	var req dto.UpdateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	node, err := h.graph.OverrideNode(ctx, c.Param("id"), nodeID, req.ParentID, req.BranchKind)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node": dto.ToNodeResponse(node)})
}

func (h *NodeHandler) AcceptHeuristic(c *gin.Context) {
	ctx := c.Request.Context()

	nodeID, err := nodeIDParam(c)
	if err != nil {
		return
	}

	node, err := h.enrichment.AcceptHeuristic(ctx, c.Param("id"), nodeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node": dto.ToNodeResponse(node)})
}

// nodeIDParam parses the :nodeId path segment; it writes the 400 itself so
// callers just return on error.
func nodeIDParam(c *gin.Context) (int, error) {
	nodeID, err := strconv.Atoi(c.Param("nodeId"))
	if err != nil || nodeID <= 0 {
		parseErr := errors.New("node id must be a positive integer")
		c.JSON(http.StatusBadRequest, apiError{Code: "INVALID_NODE_ID", Message: parseErr.Error()})
		return 0, parseErr
	}
	return nodeID, nil
}
