package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"mnemo/internal/adapter"
	"mnemo/internal/memory"
	"mnemo/internal/model"
	"mnemo/internal/services"
	"mnemo/internal/tenant"
	"mnemo/internal/vector"
	"mnemo/pkg/config"
	mnemoerrors "mnemo/pkg/errors"
	"mnemo/pkg/logger"
)

const tenantContextKey = "tenant"

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting memory API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity",
			zap.Error(mnemoerrors.NewGraphConnectionFailed(cfg.Neo4jURI, err)))
	}

	// Initialize Qdrant client
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		log.Fatal("Failed to create Qdrant client", zap.Error(err))
	}

	// The collection must exist with the configured dimension before any
	// request is served. A dimension mismatch is a deployment error.
	if err := vector.EnsureCollection(ctx, qdrantClient, cfg.QdrantCollection, cfg.EmbeddingDimension); err != nil {
		log.Fatal("Failed to ensure vector collection", zap.Error(err))
	}

	// AI collaborators
	embedder := adapter.NewEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	extractor := adapter.NewExtractor(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ExtractionModel)

	manager := services.NewManager(driver, qdrantClient, embedder, cfg.QdrantCollection)
	defer manager.Close(context.Background())

	// Tenant resolution: a static single-tenant mapping when configured,
	// otherwise the registry in the control database.
	var resolver tenant.Resolver
	if cfg.DefaultTenantID != "" && cfg.DefaultGraphName != "" {
		resolver = tenant.NewStaticResolver(map[string]tenant.Tenant{
			cfg.DefaultAPIKey: {ID: cfg.DefaultTenantID, GraphName: cfg.DefaultGraphName},
		})
		log.Info("Using static tenant resolver", zap.String("tenant_id", cfg.DefaultTenantID))
	} else {
		resolver = tenant.NewGraphResolver(driver, cfg.ControlDatabase)
		log.Info("Using graph-backed tenant registry", zap.String("control_database", cfg.ControlDatabase))
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-API-Key, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes, all tenant-scoped
	api := router.Group("/api")
	api.Use(tenantAuth(resolver, log))
	{
		// Ingest content for an entity
		api.POST("/memory/assimilate", func(c *gin.Context) {
			var req struct {
				IdentifierType  string   `json:"identifier_type" binding:"required"`
				IdentifierValue string   `json:"identifier_value" binding:"required"`
				Content         string   `json:"content" binding:"required"`
				Timestamp       string   `json:"timestamp"`
				PriorTurns      []string `json:"prior_turns"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			timestamp := time.Now().UTC()
			if req.Timestamp != "" {
				parsed, err := time.Parse(time.RFC3339, req.Timestamp)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC 3339"})
					return
				}
				timestamp = parsed
			}

			graphRepo, vectorRepo := manager.ForTenant(currentTenant(c))
			assimilator := memory.NewAssimilator(graphRepo, vectorRepo, extractor)

			identifier := model.Identifier{Type: req.IdentifierType, Value: req.IdentifierValue}
			result, err := assimilator.Assimilate(c.Request.Context(), identifier, req.Content, timestamp, req.PriorTurns)
			if err != nil {
				respondError(c, log, "Assimilation failed", err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Recall an entity's memory by identifier
		api.GET("/memory/recall", func(c *gin.Context) {
			identifierType := c.Query("identifier_type")
			identifierValue := c.Query("identifier_value")
			if identifierType == "" || identifierValue == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "identifier_type and identifier_value are required"})
				return
			}
			opts, err := recallOptions(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			graphRepo, vectorRepo := manager.ForTenant(currentTenant(c))
			retriever := memory.NewRetriever(graphRepo, vectorRepo)

			result, err := retriever.Recall(c.Request.Context(), identifierType, identifierValue, opts)
			if err != nil {
				respondError(c, log, "Recall failed", err)
				return
			}
			if result == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Unknown identifier"})
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Recall by system id
		api.GET("/entity/:id", func(c *gin.Context) {
			opts, err := recallOptions(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			graphRepo, vectorRepo := manager.ForTenant(currentTenant(c))
			retriever := memory.NewRetriever(graphRepo, vectorRepo)

			result, err := retriever.RecallByID(c.Request.Context(), c.Param("id"), opts)
			if err != nil {
				respondError(c, log, "Recall failed", err)
				return
			}
			if result == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Forget an entity entirely
		api.DELETE("/entity/:id", func(c *gin.Context) {
			graphRepo, vectorRepo := manager.ForTenant(currentTenant(c))
			assimilator := memory.NewAssimilator(graphRepo, vectorRepo, extractor)

			deleted, err := assimilator.Forget(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, log, "Forget failed", err)
				return
			}
			if !deleted {
				c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Inspect one fact's provenance across entities
		api.GET("/fact/:fact_id", func(c *gin.Context) {
			graphRepo, _ := manager.ForTenant(currentTenant(c))

			detail, err := graphRepo.FindFactByID(c.Request.Context(), c.Param("fact_id"))
			if err != nil {
				respondError(c, log, "Fact lookup failed", err)
				return
			}
			if detail == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Fact not found"})
				return
			}
			c.JSON(http.StatusOK, detail)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// tenantAuth resolves the X-API-Key header to a tenant and aborts with 401
// when it cannot
func tenantAuth(resolver tenant.Resolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-API-Key header is required"})
			return
		}

		t, err := resolver.Resolve(c.Request.Context(), apiKey)
		if err != nil {
			log.Error("Tenant resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve tenant"})
			return
		}
		if t == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown API key"})
			return
		}

		c.Set(tenantContextKey, *t)
		c.Next()
	}
}

func currentTenant(c *gin.Context) tenant.Tenant {
	return c.MustGet(tenantContextKey).(tenant.Tenant)
}

// recallOptions reads the shared recall query parameters
func recallOptions(c *gin.Context) (memory.RecallOptions, error) {
	opts := memory.RecallOptions{Query: c.Query("q")}

	if raw := c.Query("top_k"); raw != "" {
		var topK int
		if _, err := fmt.Sscanf(raw, "%d", &topK); err != nil || topK < 1 {
			return opts, fmt.Errorf("top_k must be a positive integer")
		}
		opts.TopK = topK
	}
	if raw := c.Query("min_score"); raw != "" {
		var minScore float32
		if _, err := fmt.Sscanf(raw, "%g", &minScore); err != nil || minScore < 0 || minScore > 1 {
			return opts, fmt.Errorf("min_score must be between 0 and 1")
		}
		opts.MinScore = minScore
	}
	if raw := c.Query("depth"); raw != "" {
		var depth int
		if _, err := fmt.Sscanf(raw, "%d", &depth); err != nil || depth < 0 || depth > 1 {
			return opts, fmt.Errorf("depth must be 0 or 1")
		}
		opts.Depth = depth
	}
	return opts, nil
}

// respondError maps domain errors to HTTP responses. Store failures are
// reported as 503 so callers know a retry may succeed.
func respondError(c *gin.Context, log *zap.Logger, message string, err error) {
	if mnemoerrors.IsErrorType(err, mnemoerrors.ErrorTypeValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Error(message, zap.Error(err))
	if mnemoerrors.IsRetryable(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
