package api

import (
	"net/http"
	"time"

	"github.com/advicehub/counsel/internal/api/handler"
	customMiddleware "github.com/advicehub/counsel/internal/api/middleware"
	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/config"
	"github.com/advicehub/counsel/internal/llm"
	"github.com/advicehub/counsel/internal/llm/gemini"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/advicehub/counsel/internal/repository"
	"github.com/advicehub/counsel/internal/repository/redis"
	"github.com/advicehub/counsel/internal/security"
	"github.com/advicehub/counsel/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Dependencies carries everything the router wires together. Redis is
// optional; when nil, rate limiting and space caching are skipped.
type Dependencies struct {
	Stores     repository.Stores
	DB         handler.Pinger
	Redis      *redis.Client
	User       chat.Surface
	Supervisor chat.Surface
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize security components
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Initialize rate limiter and space cache
	var rateLimiter *redis.RateLimiter
	var spaceCache *redis.SpaceCache
	if deps.Redis != nil {
		rateLimiter = redis.NewRateLimiter(
			deps.Redis,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
		spaceCache = redis.NewSpaceCache(deps.Redis)
	} else {
		log.Warn().Msg("Redis disabled, running without rate limiting or space caching")
	}

	// Initialize LLM Router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.LLM.DefaultProvider)

	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}

	// Initialize policies
	modulePolicy := policy.NewControlGroupPolicy(
		cfg.Evaluation.ControlGroupSplit,
		cfg.Evaluation.ControlGroupMessage,
		time.Now().UnixNano(),
	)
	surveyPolicy := policy.NewSampledSurveyPolicy(cfg.Evaluation.SurveySample, policy.DefaultSurveyQuestions())
	enrolment := policy.NewEnrolmentService(deps.Stores.Sessions, deps.Stores.Offices, spaceCache)

	var piiDetector policy.PIIDetector = policy.NoopDetector{}
	if cfg.Evaluation.PIIDetection {
		piiDetector = policy.NewPatternDetector()
	}

	// Initialize services
	evaluationGate := service.NewEvaluationGate(deps.Stores.Sessions, deps.Stores.Evaluations, modulePolicy)
	surveyGate := service.NewSurveyGate(deps.Stores.Sessions, deps.Stores.Evaluations, surveyPolicy, deps.User)
	aggregator := service.NewStreamAggregator(cfg.Generation.FlushThreshold)
	retryPolicy := service.DefaultRetryPolicy()
	retryPolicy.MaxAttempts = cfg.Generation.MaxAttempts

	conversationService := service.NewConversationService(
		evaluationGate,
		aggregator,
		retryPolicy,
		service.ClockSleeper{},
		deps.Stores.Messages,
		deps.Stores.Responses,
		llmRouter,
		enrolment,
		deps.User,
		deps.Supervisor,
		surveyGate,
	)
	supervisionWorkflow := service.NewSupervisionWorkflow(deps.Stores.Responses, deps.User, deps.Supervisor, surveyGate)

	// Initialize handlers
	webhookHandler := handler.NewWebhookHandler(
		conversationService,
		supervisionWorkflow,
		surveyGate,
		piiDetector,
		rateLimiter,
		deps.User,
		cfg.Generation.Timeout,
	)
	authHandler := handler.NewAuthHandler(jwtManager, cfg.Auth.AdminKey)
	enrolmentHandler := handler.NewEnrolmentHandler(enrolment, deps.Stores.Offices)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.DB))

		// Google Chat webhook (authenticated by the Chat platform upstream)
		r.Post("/webhook", webhookHandler.Handle)

		// Auth routes (public)
		r.Post("/auth/token", authHandler.Token)

		// Protected admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(customMiddleware.RequireRole("admin"))

			r.Get("/llm-providers", handler.ListLLMProviders(llmRouter))

			r.Route("/admin", func(r chi.Router) {
				r.Post("/users", enrolmentHandler.RegisterUser)
				r.Delete("/users/{email}", enrolmentHandler.RemoveUser)
				r.Get("/spaces/{spaceID}/users", enrolmentHandler.ListSpaceUsers)
				r.Put("/offices", enrolmentHandler.SetOfficeRegions)
			})
		})
	})

	return r
}
