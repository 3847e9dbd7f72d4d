package router

import (
	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/http/handler"
)

func StreamRouter(router *gin.RouterGroup, streams *handler.StreamHandler, nodes *handler.NodeHandler, commits *handler.CommitHandler) {
	router.POST("", streams.Create)
	router.GET("/:id", streams.Get)
	router.POST("/:id/nodes", nodes.Create)
	router.PATCH("/:id/nodes/:nodeId", nodes.Override)
	router.POST("/:id/nodes/:nodeId/accept-heuristic", nodes.AcceptHeuristic)
	router.POST("/:id/commit", commits.Commit)
}
