package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Repo Provisioner API
// @version 1.0
// @description Builds scenario repositories from project specs and forks them into assessment repositories with their history.
// @contact.name API Support
// @contact.url http://github.com/Kamar-Folarin
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a GitHub token. Falls back to the server token.

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		specs := v1.Group("/specs")
		{
			// @Summary Validate a project spec
			// @Description Runs structural then semantic validation on a candidate spec
			// @Tags specs
			// @Accept json
			// @Produce json
			// @Param spec body object true "Candidate spec"
			// @Success 200 {object} ValidationResponse
			// @Failure 400 {object} ErrorResponse
			// @Failure 422 {object} ValidationResponse
			// @Router /specs/validate [post]
			specs.POST("/validate", h.ValidateSpec)
		}

		// @Summary Build a scenario repository
		// @Description Validates the spec, then generates the repository from its scaffold with the spec's history and issues
		// @Tags scenarios
		// @Accept json
		// @Produce json
		// @Security ApiKeyAuth
		// @Param id path string true "Scenario ID"
		// @Param request body BuildRequest true "Spec to build"
		// @Success 201 {object} ProvisionResponse
		// @Failure 400 {object} ErrorResponse
		// @Failure 401 {object} ErrorResponse
		// @Failure 409 {object} ErrorResponse
		// @Failure 422 {object} ValidationResponse
		// @Failure 502 {object} ErrorResponse
		// @Router /scenarios/{id}/build [post]
		v1.POST("/scenarios/:id/build", h.BuildScenario)

		// @Summary Fork a scenario into an assessment
		// @Description Creates a private copy of the source repository and replays its history and issues
		// @Tags assessments
		// @Accept json
		// @Produce json
		// @Security ApiKeyAuth
		// @Param id path string true "Assessment ID"
		// @Param request body ForkRequest true "Source repository"
		// @Success 201 {object} ProvisionResponse
		// @Failure 400 {object} ErrorResponse
		// @Failure 401 {object} ErrorResponse
		// @Failure 409 {object} ErrorResponse
		// @Failure 502 {object} ErrorResponse
		// @Router /assessments/{id}/fork [post]
		v1.POST("/assessments/:id/fork", h.ForkAssessment)

		runs := v1.Group("/runs")
		{
			// @Summary List runs
			// @Description Lists provisioning runs newest first, optionally for one subject
			// @Tags runs
			// @Produce json
			// @Param subject query string false "Scenario, assessment or generation id"
			// @Success 200 {array} models.ProvisionRun
			// @Failure 500 {object} ErrorResponse
			// @Router /runs [get]
			runs.GET("", h.ListRuns)

			// @Summary Get a run
			// @Tags runs
			// @Produce json
			// @Param id path string true "Run ID"
			// @Success 200 {object} models.ProvisionRun
			// @Failure 404 {object} ErrorResponse
			// @Router /runs/{id} [get]
			runs.GET("/:id", h.GetRun)
		}

		// @Summary List scaffolds
		// @Tags scaffolds
		// @Produce json
		// @Success 200 {array} config.Scaffold
		// @Router /scaffolds [get]
		v1.GET("/scaffolds", h.ListScaffolds)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
