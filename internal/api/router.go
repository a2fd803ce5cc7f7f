package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/analyzer"
	"github.com/wenqu/procurement-assistant/internal/api/handler"
	customMiddleware "github.com/wenqu/procurement-assistant/internal/api/middleware"
	"github.com/wenqu/procurement-assistant/internal/chat"
	"github.com/wenqu/procurement-assistant/internal/config"
	"github.com/wenqu/procurement-assistant/internal/executor"
	"github.com/wenqu/procurement-assistant/internal/llm"
	"github.com/wenqu/procurement-assistant/internal/llm/gemini"
	"github.com/wenqu/procurement-assistant/internal/llm/openai"
	"github.com/wenqu/procurement-assistant/internal/repository/postgres"
	"github.com/wenqu/procurement-assistant/internal/repository/redis"
	"github.com/wenqu/procurement-assistant/internal/schema"
	"github.com/wenqu/procurement-assistant/internal/session"
	"github.com/wenqu/procurement-assistant/internal/synthesizer"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, store *session.Store) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// LLM router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)
	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.LLM.DefaultProvider)

	if cfg.LLM.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(
			cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.Model,
		))
	} else {
		log.Warn().Msg("LLM_API_KEY is empty, OpenAI-compatible provider disabled")
	}
	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model))
	}

	// Analysis pipeline
	introspector := schema.NewIntrospector(db.Pool)
	synth := synthesizer.New(llmRouter)
	exec := executor.New(db.Pool, cfg.Security.MaxRows, cfg.Security.QueryTimeout)
	an := analyzer.New(llmRouter)

	chatService := chat.NewService(introspector, synth, exec, an, store, llmRouter, chat.DefaultClassifier())

	// Handlers
	chatHandler := handler.NewChatHandler(chatService)
	sessionHandler := handler.NewSessionHandler(store)

	// Rate limiting only guards the chat pipeline; nil limiter disables it.
	var limiter *redis.RateLimiter
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute)
	}
	rateLimit := customMiddleware.NewRateLimitMiddleware(limiter)

	// Health
	r.Get("/health", handler.HealthCheck)
	r.Get("/ready", handler.ReadyCheck(db))

	// Chat
	r.Get("/chat", chatHandler.Page)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit.Limit)
		r.Post("/chat", chatHandler.Post)
	})

	// Session persistence
	r.Post("/save_chat", sessionHandler.Save)
	r.Post("/load_chat", sessionHandler.Load)
	r.Get("/list-sessions", sessionHandler.List)

	return r
}
