package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caselight/caselight-backend/internal/cache"
	"github.com/caselight/caselight-backend/internal/clients/redis"
	"github.com/caselight/caselight-backend/internal/db"
	"github.com/caselight/caselight-backend/internal/handlers"
	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/observability"
	"github.com/caselight/caselight-backend/internal/platform/anthropic"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/provider"
	"github.com/caselight/caselight-backend/internal/repos"
	"github.com/caselight/caselight-backend/internal/server"
	"github.com/caselight/caselight-backend/internal/services"
	"github.com/caselight/caselight-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Postgres
	log.Info("Setting up Postgres from main...")
	var analysisRunRepo repos.AnalysisRunRepo
	var aiCallLogRepo repos.AICallLogRepo
	if utils.GetEnvAsBool("DB_DISABLED", false, log) {
		log.Warn("DB_DISABLED set, analysis persistence and call audit are off")
	} else {
		gdb, err := db.NewPostgres(log)
		if err != nil {
			log.Error("Postgres init failed", "error", err)
			os.Exit(1)
		}
		analysisRunRepo = repos.NewAnalysisRunRepo(gdb, log)
		aiCallLogRepo = repos.NewAICallLogRepo(gdb, log)
	}

	// Redis (optional term definition cache)
	termCache, err := redis.NewTermCache(ctx, log)
	if err != nil {
		log.Warn("Redis init failed, term definition cache disabled", "error", err)
		termCache = nil
	}

	// Metrics
	shutdownMetrics := observability.InitMetrics(ctx, log, observability.OtelConfig{
		ServiceName: "caselight-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "", log),
	})
	if shutdownMetrics != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(sctx); err != nil {
				log.Warn("Metrics shutdown failed", "error", err)
			}
		}()
	}
	metrics, err := observability.New()
	if err != nil {
		log.Warn("Metrics init failed, continuing without instruments", "error", err)
		metrics = nil
	}

	// Backend adapters, in preference order
	log.Info("Setting up backend adapters from main...")
	adapters := buildAdapters(log)
	if len(adapters) == 0 {
		log.Warn("No backend adapters configured; simplification will return placeholders")
	}

	// Services
	log.Info("Setting up Services from main...")
	dictionary, err := services.NewTermDictionary(log, utils.GetEnv("TERM_DICTIONARY_PATH", "", log))
	if err != nil {
		log.Error("Could not load term dictionary", "error", err)
		os.Exit(1)
	}

	resultCache := cache.NewResultCache(log, utils.GetEnvAsInt("RESULT_CACHE_CAPACITY", 512, log))

	var callRecorder services.AICallRecorder
	if aiCallLogRepo != nil {
		callRecorder = aiCallLogRepo
	}
	orchestrator := services.NewModelOrchestrator(log, adapters, resultCache, callRecorder, metrics, services.OrchestratorConfigFromEnv(log))

	normalizer := services.NewDocumentNormalizer(log)
	extractor := services.NewFeatureExtractor(log, dictionary)
	riskClassifier := services.NewRiskClassifier(log)
	readability := services.NewReadabilityAnalyzer(log)

	var runRecorder services.AnalysisRunRecorder
	if analysisRunRepo != nil {
		runRecorder = analysisRunRepo
	}
	analysisService := services.NewAnalysisService(log, normalizer, extractor, riskClassifier, readability, orchestrator, runRecorder, metrics)

	var termDefCache services.TermDefinitionCache
	if termCache != nil {
		termDefCache = termCache
	}
	termService := services.NewTermLookupService(log, dictionary, orchestrator, termDefCache)

	// Handlers
	log.Info("Setting up handlers from main...")
	healthHandler := handlers.NewHealthcheckHandler()
	analysisHandler := handlers.NewAnalysisHandler(log, analysisService, orchestrator, termService, analysisRunRepo)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(log, healthHandler, analysisHandler)

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// buildAdapters constructs every adapter whose API key is present and
// orders them by BACKEND_PREFERENCE (first entry is primary).
func buildAdapters(log *logger.Logger) []provider.Adapter {
	available := map[string]provider.Adapter{}

	if os.Getenv("OPENAI_API_KEY") != "" {
		a, err := openai.NewClient(log)
		if err != nil {
			log.Warn("Could not init OpenAI adapter", "error", err)
		} else {
			available["openai"] = a
		}
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		a, err := anthropic.NewClient(log)
		if err != nil {
			log.Warn("Could not init Anthropic adapter", "error", err)
		} else {
			available["anthropic"] = a
		}
	}

	var ordered []provider.Adapter
	preference := utils.GetEnv("BACKEND_PREFERENCE", "openai,anthropic", log)
	for _, name := range strings.Split(preference, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if a, ok := available[name]; ok {
			ordered = append(ordered, a)
			delete(available, name)
		}
	}
	for name, a := range available {
		log.Warn("Adapter not named in BACKEND_PREFERENCE, appending", "provider", name)
		ordered = append(ordered, a)
	}
	return ordered
}
