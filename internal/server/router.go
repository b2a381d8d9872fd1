package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight-backend/internal/handlers"
	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/middleware"
	"github.com/caselight/caselight-backend/internal/utils"
)

func NewRouter(
	log *logger.Logger,
	health *handlers.HealthcheckHandler,
	analysis *handlers.AnalysisHandler,
) *gin.Engine {
	if strings.EqualFold(utils.GetEnv("GIN_MODE", "", log), "release") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog(log))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if origins := utils.GetEnv("ALLOWED_ORIGINS", "", log); origins != "" {
		corsCfg.AllowOrigins = strings.Split(origins, ",")
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthcheck", health.Healthcheck)

	api := router.Group("/api")
	{
		api.POST("/analyze", analysis.Analyze)
		api.POST("/simplify", analysis.Simplify)
		api.POST("/terms/lookup", analysis.LookupTerm)
		api.GET("/analyses", analysis.RecentAnalyses)
	}

	return router
}
