package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pointlock/pointlock-backend/internal/api/handlers"
	"github.com/pointlock/pointlock-backend/internal/api/middleware"
	"github.com/pointlock/pointlock-backend/internal/config"
	"github.com/pointlock/pointlock-backend/internal/service"
	"github.com/pointlock/pointlock-backend/internal/websocket"
	"github.com/pointlock/pointlock-backend/pkg/ratelimit"
)

// Deps 라우터가 필요로 하는 구성 요소. 백그라운드 서비스의 수명은
// main이 관리하므로 여기서는 주입만 받는다.
type Deps struct {
	QueueService *service.QueueService
	MatchService *service.MatchService
	UserService  *service.UserService
	Hub          *websocket.Hub
	RateLimiter  *ratelimit.RedisRateLimiter
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Handler 초기화
	authHandler := handlers.NewAuthHandler(deps.UserService)
	queueHandler := handlers.NewQueueHandler(deps.QueueService)
	matchHandler := handlers.NewMatchHandler(deps.MatchService)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.AuthRateLimit(), authHandler.Login)
			auth.POST("/register", middleware.AuthRateLimit(), authHandler.Register)
		}

		// Queue routes
		queue := v1.Group("/queue")
		queue.Use(middleware.Auth(cfg))
		{
			queue.POST("", middleware.RedisEnqueueRateLimit(deps.RateLimiter, cfg.EnqueuePerMinute), queueHandler.JoinQueue)
			queue.DELETE("/:gameMode", queueHandler.LeaveQueue)
			queue.GET("/:gameMode", queueHandler.GetQueueStatus)
		}

		// Match routes
		matches := v1.Group("/matches")
		matches.Use(middleware.Auth(cfg))
		{
			matches.GET("/my", matchHandler.ListMyMatches)
			matches.GET("/:id", matchHandler.GetMatch)
		}
	}

	return router
}
