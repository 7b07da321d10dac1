package poolapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/lhauspie/streampool/internal/poolapi/handlers"
	"github.com/lhauspie/streampool/internal/poolapi/middleware"

	_ "github.com/lhauspie/streampool/internal/poolapi/docs" // swagger docs
)

// RegisterRoutes wires the introspection API's endpoints onto r. apiKey, when
// non-empty, gates every /api/v1 route behind middleware.RequireAPIKey.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, apiKey string) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	if apiKey != "" {
		api.Use(middleware.RequireAPIKey(apiKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/pools/managers", h.ListManagers)
	api.GET("/pools/manager", h.GetManagerSnapshot)
	api.GET("/pools/events", h.GetEvents)
}
