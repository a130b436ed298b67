package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ai-testgen/backend/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
// The websocket endpoint does its own token check from the query
// string, so it sits outside the bearer-auth group.
func SetupRouter(deps *handler.Dependencies, verifier TokenVerifier, wsHandler gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ai-testgen-api",
		})
	})

	r.GET("/ws/projects/:project_id", wsHandler)

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(verifier))
	{
		projects := v1.Group("/projects/:project_id")
		{
			// POST /api/v1/projects/:project_id/scan - Queue a codebase scan
			projects.POST("/scan", jobHandler.TriggerScan)

			// POST /api/v1/projects/:project_id/tests/generate - Queue batch generation
			projects.POST("/tests/generate", jobHandler.TriggerGeneration)

			// POST /api/v1/projects/:project_id/tests/:test_id/heal - Queue self-healing
			projects.POST("/tests/:test_id/heal", jobHandler.TriggerHealing)
		}

		// GET /api/v1/jobs/:job_id - Poll job status
		v1.GET("/jobs/:job_id", jobHandler.GetJob)
	}

	return r
}
