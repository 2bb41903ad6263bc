package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/YosriMlik/llm-wrapper/internal/config"
	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/YosriMlik/llm-wrapper/internal/openrouter"
	"github.com/YosriMlik/llm-wrapper/internal/registry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultVersion is reported by the health endpoint unless overridden.
const DefaultVersion = "1.0.0"

// Completer issues upstream completions.
type Completer interface {
	Complete(ctx context.Context, model string, messages []models.ChatMessage) (*models.Completion, error)
	Stream(ctx context.Context, model string, messages []models.ChatMessage) (io.ReadCloser, error)
}

// Server represents the API server
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	registry   *registry.Registry
	completer  Completer
	authorizer Authorizer
	version    string
	static     http.FileSystem
}

// Option customizes a Server.
type Option func(*Server)

// WithCompleter replaces the OpenRouter client.
func WithCompleter(c Completer) Option {
	return func(s *Server) { s.completer = c }
}

// WithAuthorizer installs a capability check run before the chat and model routes.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) { s.authorizer = a }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a new server instance
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	reg, err := registry.New(cfg.Models.Available, cfg.Models.Default)
	if err != nil {
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   gin.New(),
		registry: reg,
		version:  DefaultVersion,
	}
	if cfg.Security.APIKey != "" {
		s.authorizer = StaticKeyAuthorizer(cfg.Security.APIKey)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.completer == nil {
		s.completer = openrouter.NewClient(cfg.OpenRouter, logger)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Registry returns the model registry the server validates against.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggerMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ping", s.ping)

	api := s.router.Group("/api")
	if s.cfg.Security.EnableCORS {
		api.Use(s.corsMiddleware())
		// preflight never matches a route otherwise; the middleware answers it
		api.OPTIONS("/*path", func(c *gin.Context) {})
	}
	{
		api.GET("/", s.apiStatus)
		api.POST("/test", s.echo)

		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/models", s.listModels)
			protected.GET("/ai-models", s.listModels)
			protected.POST("/chat", s.chat)
			protected.POST("/chat/completions", s.chatCompletions)
		}
	}

	s.setupStaticFiles()
}
