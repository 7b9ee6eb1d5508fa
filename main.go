package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scholar-trace/collectors"
	"scholar-trace/collectors/discovery"
	"scholar-trace/collectors/govapi"
	"scholar-trace/collectors/library"
	"scholar-trace/collectors/repository"
	"scholar-trace/config"
	"scholar-trace/models"
	"scholar-trace/services"
)

var (
	profilesCreatedCounter prometheus.Counter
	runsFinishedCounter    *prometheus.CounterVec
)

func init() {
	profilesCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "profiles_created_total",
			Help: "Total number of new researcher profiles created.",
		},
	)
	runsFinishedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_runs_finished_total",
			Help: "Total number of finished collector runs by terminal status.",
		},
		[]string{"collector", "status"},
	)
	prometheus.MustRegister(profilesCreatedCounter, runsFinishedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to profile database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Researcher{}, &models.Publication{}, &models.CollectorRun{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Core services
	controlStore := services.NewControlStore()
	activityLog := services.NewActivityLog(cfg.LogHistorySize, logging)
	mergeService := services.NewMergeService(cfg, db, logging)
	runner := services.NewRunner(cfg, db, mergeService, controlStore, activityLog, logging)
	scheduler := services.NewScheduler(cfg, runner, activityLog, logging)
	scheduler.OnRunFinished = func(run *models.CollectorRun) {
		profilesCreatedCounter.Add(float64(run.CreatedCount))
		runsFinishedCounter.WithLabelValues(run.Source, run.Status).Inc()
	}

	// Collectors
	enabledNames := strings.Split(cfg.EnabledCollectors, ",")
	registeredCount := 0
	for _, name := range enabledNames {
		var col collectors.Collector
		schedule := cfg.CronSchedule

		switch strings.TrimSpace(name) {
		case "govapi":
			col = govapi.NewFetcher(cfg, logging)
		case "library":
			col = library.NewFetcher(cfg, logging)
		case "repository":
			col = repository.NewFetcher(cfg, logging)
		case "discovery":
			agent, agentErr := discovery.NewAgent(cfg, db, logging)
			if agentErr != nil {
				logging.Warn("Discovery collector disabled", zap.Error(agentErr))
				continue
			}
			col = agent
			schedule = cfg.DiscoverySchedule
		case "":
			continue
		default:
			logging.Warn("Unknown collector in config", zap.String("collector_name", name))
			continue
		}

		if err := scheduler.Register(col, schedule); err != nil {
			logging.Fatal("Failed to register collector", zap.String("collector", col.Name()), zap.Error(err))
		}
		controlStore.SetStatus(col.Name(), services.ControlRunning)
		registeredCount++
	}
	if registeredCount == 0 {
		logging.Fatal("No valid collectors enabled. Check ENABLED_COLLECTORS in .env")
	}
	logging.Info("Active collectors registered", zap.Strings("collectors", scheduler.Names()))

	// Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupControlRoutes(router, controlStore, scheduler, activityLog, logging)
	setupResearcherRoutes(router, db, logging)
	setupRunRoutes(router, db, logging)

	scheduler.Start()
	defer scheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// setupControlRoutes wires the operator control plane: statuses, status
// transitions, on-demand triggers and the activity log.
func setupControlRoutes(router *gin.Engine, control *services.ControlStore, scheduler *services.Scheduler, activityLog *services.ActivityLog, log *zap.Logger) {
	rg := router.Group("/control")

	rg.GET("/statuses", func(c *gin.Context) {
		statuses := make(map[string]gin.H)
		for _, name := range scheduler.Names() {
			statuses[name] = gin.H{
				"status":    control.GetStatus(name),
				"in_flight": scheduler.InFlight(name),
			}
		}
		c.JSON(http.StatusOK, statuses)
	})

	rg.POST("/:name", func(c *gin.Context) {
		name := c.Param("name")
		var req struct {
			Action string `json:"action" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body, 'action' is required"})
			return
		}

		var status services.ControlStatus
		switch req.Action {
		case "start":
			status = services.ControlRunning
		case "pause":
			status = services.ControlPaused
		case "stop":
			status = services.ControlStopped
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of start, pause, stop"})
			return
		}

		control.SetStatus(name, status)
		if status == services.ControlStopped {
			// Stop also cancels the in-flight run; the run still finishes
			// its current fetch and reports partial totals.
			scheduler.CancelRun(name)
		}
		log.Info("Collector status changed", zap.String("collector", name), zap.String("action", req.Action))
		c.JSON(http.StatusOK, gin.H{"collector": name, "status": status})
	})

	rg.POST("/:name/run", func(c *gin.Context) {
		name := c.Param("name")
		runID, err := scheduler.TriggerRun(name)
		if err != nil {
			if errors.Is(err, services.ErrRunInFlight) {
				c.JSON(http.StatusConflict, gin.H{"error": "a run is already in flight for this collector"})
				return
			}
			log.Error("Failed to trigger run", zap.String("collector", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "run triggered", "run_id": runID})
	})

	router.GET("/logs", func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		entries := activityLog.Query(c.Query("collector"), limit)
		c.JSON(http.StatusOK, entries)
	})

	router.DELETE("/logs", func(c *gin.Context) {
		activityLog.Clear("")
		c.JSON(http.StatusOK, gin.H{"message": "all logs cleared"})
	})

	router.DELETE("/logs/:name", func(c *gin.Context) {
		name := c.Param("name")
		activityLog.Clear(name)
		c.JSON(http.StatusOK, gin.H{"message": "logs cleared", "collector": name})
	})
}

func setupResearcherRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/researchers")

	rg.GET("/", func(c *gin.Context) {
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		var researchers []models.Researcher
		if err := db.Order("created_at desc").Limit(limit).Find(&researchers).Error; err != nil {
			log.Error("Database query for researchers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, researchers)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var researcher models.Researcher
		if err := db.Preload("Publications").First(&researcher, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "researcher not found"})
				return
			}
			log.Error("DB error fetching researcher", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, researcher)
	})
}

func setupRunRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/runs")

	rg.GET("/", func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		query := db.Model(&models.CollectorRun{})
		if source := c.Query("source"); source != "" {
			query = query.Where("source = ?", source)
		}

		var runs []models.CollectorRun
		if err := query.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
			log.Error("Database query for runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}
