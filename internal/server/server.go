// Package server contains the HTTP handlers for the guest request API.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Nihad1903/azmiu-guest-web/internal/cache"
	"github.com/Nihad1903/azmiu-guest-web/internal/config"
	"github.com/Nihad1903/azmiu-guest-web/internal/database"
	"github.com/Nihad1903/azmiu-guest-web/internal/middleware"
	"github.com/Nihad1903/azmiu-guest-web/internal/models"
	"github.com/Nihad1903/azmiu-guest-web/internal/novus"
	"github.com/Nihad1903/azmiu-guest-web/internal/repository"
	"github.com/Nihad1903/azmiu-guest-web/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	userRepo       repository.UserRepository
	requestRepo    repository.GuestRequestRepository
	requestService *service.RequestService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	novusClient := novus.NewClient(cfg.NovusBaseURL, middleware.Logger)
	authenticator := novus.NewAuthenticator(novusClient, novus.Credentials{
		Username: cfg.NovusUsername,
		Password: cfg.NovusPassword,
	}, middleware.Logger)
	provisioner := novus.NewProvisionService(novusClient, authenticator, cfg.NovusAccessLevel, middleware.Logger)

	return NewServerWithDeps(cfg, db, redisClient, provisioner)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this with an in-memory database and a stub provisioner.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, provisioner service.Provisioner) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewGuestRequestRepository(db)

	prom := middleware.InitMetrics("guest-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		requestRepo:    requestRepo,
	}
	server.requestService = service.NewRequestService(db, requestRepo, provisioner, middleware.Logger)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Auth routes
	auth := api.Group("/auth")
	auth.Get("/", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "basic_auth"), s.TokenAuth)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/refresh", s.Refresh)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(s.config.JWTSecret))

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)

	// Guest request routes. Submission and ownership operations are
	// manager-only; review operations are superuser-only.
	requests := protected.Group("/qr-requests")
	requests.Post("/", s.ManagerRequired(), middleware.RateLimit(
		s.redis, 20, time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/my", s.ManagerRequired(), s.GetMyRequests)
	requests.Get("/all", s.SuperuserRequired(), s.GetAllRequests)
	requests.Get("/pending", s.SuperuserRequired(), s.GetPendingRequests)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	requests.Post("/:id/approve", s.SuperuserRequired(), s.ApproveRequest)
	requests.Post("/:id/reject", s.SuperuserRequired(), s.RejectRequest)
	requests.Get("/:id/qr-code", s.DownloadQRCode)
	requests.Get("/:id", s.GetRequest)
	requests.Delete("/:id", s.ManagerRequired(), s.DeleteRequest)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis only backs rate limiting, so readiness tolerates its absence.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Shutdown releases server resources: the Redis connection and the
// database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.WarnContext(ctx, "error closing redis client", "error", err)
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			return cerr
		}
	}
	return nil
}

// SuperuserRequired returns middleware that rejects non-superuser callers
// with 403. Must be placed after AuthRequired so that userID is available
// in locals.
func (s *Server) SuperuserRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.currentUser(c)
		if err != nil {
			return nil
		}
		if !user.IsSuperuser() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewPermissionError("Superuser access required"))
		}
		return c.Next()
	}
}

// ManagerRequired returns middleware that rejects callers without the
// manager role with 403. Superusers review requests; they do not submit
// or own them. Must be placed after AuthRequired.
func (s *Server) ManagerRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.currentUser(c)
		if err != nil {
			return nil
		}
		if !user.IsManager() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewPermissionError("Manager access required"))
		}
		return c.Next()
	}
}
