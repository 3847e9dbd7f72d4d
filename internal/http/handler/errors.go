package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/service"
)

// apiError is the wire shape of every error response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorStatus = map[error]struct {
	status int
	code   string
}{
	service.ErrStreamNotFound:        {http.StatusNotFound, "STREAM_NOT_FOUND"},
	service.ErrNodeNotFound:          {http.StatusNotFound, "NODE_NOT_FOUND"},
	service.ErrParentNotFound:        {http.StatusNotFound, "PARENT_NOT_FOUND"},
	service.ErrStreamEnded:           {http.StatusConflict, "STREAM_ENDED"},
	service.ErrNodeLimitReached:      {http.StatusConflict, "NODE_LIMIT_REACHED"},
	service.ErrTreeCapacityExhausted: {http.StatusConflict, "TREE_CAPACITY_EXHAUSTED"},
	service.ErrRootImmutable:         {http.StatusConflict, "ROOT_NODE_IMMUTABLE"},
	service.ErrInvalidParent:         {http.StatusConflict, "INVALID_PARENT"},
	service.ErrMainBranchOccupied:    {http.StatusConflict, "MAIN_BRANCH_OCCUPIED"},
	service.ErrSideBranchLimit:       {http.StatusConflict, "SIDE_BRANCH_LIMIT_REACHED"},
	service.ErrNodeNotFailed:         {http.StatusConflict, "NODE_NOT_FAILED"},
	service.ErrEnrichmentBlocking:    {http.StatusConflict, "AI_ENRICHMENT_BLOCKING_COMMIT"},
}

// respondError maps service sentinels onto HTTP statuses; ledger failures
// become a 502 with a per-intent code; anything unmapped is a 500 with the
// detail kept out of the response body.
func respondError(c *gin.Context, err error) {
	for sentinel, mapping := range errorStatus {
		if errors.Is(err, sentinel) {
			c.JSON(mapping.status, apiError{Code: mapping.code, Message: sentinel.Error()})
			return
		}
	}

	var ledgerErr *chain.Error
	if errors.As(err, &ledgerErr) {
		slog.ErrorContext(c.Request.Context(), "ledger operation failed",
			"op", string(ledgerErr.Op), "error", err)
		code, message := "CHAIN_COMMIT_FAILED", "failed to commit snapshot on ledger"
		if ledgerErr.Op == chain.OpCreateStream {
			code, message = "CHAIN_CREATE_STREAM_FAILED", "failed to create stream on ledger"
		}
		c.JSON(http.StatusBadGateway, apiError{Code: code, Message: message})
		return
	}

	slog.ErrorContext(c.Request.Context(), "unhandled service error", "error", err)
	c.JSON(http.StatusInternalServerError, apiError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "internal server error",
	})
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apiError{Code: "INVALID_REQUEST", Message: err.Error()})
}
