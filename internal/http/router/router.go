package router

import (
	"github.com/gin-gonic/gin"

	"mindgraph.app/grove/internal/http/handler"
	"mindgraph.app/grove/internal/service"
)

func SetupRoutes(router *gin.Engine, services *service.Services) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		streamHandler := handler.NewStreamHandler(services.Streams(), services.Snapshots())
		nodeHandler := handler.NewNodeHandler(services.Graph(), services.Enrichment())
		commitHandler := handler.NewCommitHandler(services.Snapshots())

		StreamRouter(api.Group("/streams"), streamHandler, nodeHandler, commitHandler)
	}
}
