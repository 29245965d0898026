package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/agentforge/agentforge/internal/events"
	"github.com/agentforge/agentforge/internal/registry"
	"github.com/agentforge/agentforge/internal/workflow"
	"github.com/agentforge/agentforge/pkg/config"
	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/resilience"
)

func main() {
	// Load .env if present; environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "registryd",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Strategy manager shared by the tool registry
	strategyCfg := workflow.Config{
		Mode:           workflow.ParseFailureHandlingMode(cfg.Workflow.FailureHandling),
		StepTimeout:    cfg.Workflow.StepTimeout,
		TotalTimeout:   cfg.Workflow.TotalTimeout,
		MaxConcurrency: cfg.Workflow.MaxConcurrency,
		MaxIterations:  cfg.Workflow.MaxIterations,
		RetryPolicy: resilience.RetryPolicy{
			MaxAttempts:       cfg.Resilience.RetryMaxAttempts,
			Strategy:          resilience.BackoffExponential,
			BaseDelay:         cfg.Resilience.RetryBaseDelay,
			MaxDelay:          cfg.Resilience.RetryMaxDelay,
			BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
			Jitter:            cfg.Resilience.Jitter,
		},
	}

	strategies := workflow.NewStrategyManager()
	strategies.Register("sequential", workflow.NewSequential(strategyCfg, m))
	strategies.Register("parallel", workflow.NewParallel(strategyCfg, m))
	strategies.Register("loop", workflow.NewLoop(strategyCfg, m))
	if err := strategies.SetDefault(cfg.Tools.DefaultStrategy); err != nil {
		// Tool type tags (function/mcp/openapi) resolve through the
		// default, so an unknown default falls back to sequential.
		logger.Warn("Unknown default strategy, using sequential",
			"configured", cfg.Tools.DefaultStrategy,
		)
		_ = strategies.SetDefault("sequential")
	}

	agents := registry.NewAgentRegistry(cfg.Agents, nil, m)
	tools := registry.NewToolRegistry(cfg.Tools, strategies, m)

	// Optional Redis event mirroring
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("Redis health check failed: %v", err)
		}
		cancel()
		logger.Info("Redis connection established", "addr", cfg.Redis.Addr)

		ctx := context.Background()
		agentPub := events.NewRedisPublisher(client, events.DefaultPublisherConfig(cfg.Agents.Name))
		toolPub := events.NewRedisPublisher(client, events.DefaultPublisherConfig(cfg.Tools.Name))
		agents.Subscribe(agentPub.Listener(ctx))
		tools.Subscribe(toolPub.Listener(ctx))
	}

	agents.Startup()
	defer agents.Shutdown()
	tools.Startup()
	defer tools.Shutdown()

	router := setupRouter(cfg, m, agents, tools)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting registry server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down registry server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

var version = "dev"

func setupRouter(cfg *config.Config, m *metrics.Metrics, agents *registry.AgentRegistry, tools *registry.ToolRegistry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(m.PrometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status": "ok",
			"agents": agents.Started(),
			"tools":  tools.Started(),
		}
		if !agents.Started() || !tools.Started() {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"agents": agents.Stats(),
			"tools":  tools.Stats(),
		})
	})

	router.GET("/agents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"names":  agents.ListNames(),
			"health": agents.GetAllHealthInfo(),
		})
	})

	router.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"names":    tools.ListNames(),
			"toolsets": tools.ListToolsets(),
			"health":   tools.GetAllHealthInfo(),
		})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	return router
}
