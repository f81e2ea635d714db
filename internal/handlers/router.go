package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/assessment-engine/internal/config"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
	"github.com/quizforge/assessment-engine/internal/services"
	"github.com/quizforge/assessment-engine/internal/utils"
	"github.com/quizforge/assessment-engine/internal/validator"
)

type HandlerManager struct {
	assessmentHandler *AssessmentHandler
	attemptHandler    *AttemptHandler
	authMiddleware    *CasdoorAuthMiddleware
	repo              repositories.Repository
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	repo repositories.Repository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, repo.User())

	return &HandlerManager{
		assessmentHandler: NewAssessmentHandler(serviceManager.Assessment(), logger),
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), serviceManager.Grading(), validator, logger),
		authMiddleware:    authMiddleware,
		repo:              repo,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		assessments := v1.Group("/assessments")
		{
			assessments.GET("/:id", hm.assessmentHandler.GetAssessment)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.PUT("/:id/progress", hm.attemptHandler.SaveProgress)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/results", hm.attemptHandler.GetAttemptResults)

			// Manual grading - graders and admins only
			attempts.POST("/:id/questions/:index/grade",
				hm.authMiddleware.RequireRoleMiddleware(models.RoleGrader, models.RoleAdmin),
				hm.attemptHandler.GradeQuestion)

			// Maintenance sweep - admins only
			attempts.POST("/sweep-abandoned",
				hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin),
				hm.attemptHandler.SweepAbandoned)
		}
	}

	router.GET("/healthz", func(c *gin.Context) {
		if err := hm.repo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "assessment-engine",
		})
	})
}
