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

	"github.com/redis/go-redis/v9"

	"github.com/pointlock/pointlock-backend/internal/api"
	"github.com/pointlock/pointlock-backend/internal/config"
	"github.com/pointlock/pointlock-backend/internal/repository"
	"github.com/pointlock/pointlock-backend/internal/service"
	"github.com/pointlock/pointlock-backend/internal/websocket"
	"github.com/pointlock/pointlock-backend/pkg/database"
	"github.com/pointlock/pointlock-backend/pkg/distributed"
	jwtutil "github.com/pointlock/pointlock-backend/pkg/jwt"
	"github.com/pointlock/pointlock-backend/pkg/logger"
	"github.com/pointlock/pointlock-backend/pkg/ratelimit"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	zapLogger := logger.Desugar()

	logger.Info("Starting PointLock Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	// 데이터베이스 연결
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Redis 연결
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}

	logger.Info("Redis connection established")

	// Repository 초기화
	userRepo := repository.NewUserRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	entrySetRepo := repository.NewEntrySetRepository(db)
	walletRepo := repository.NewWalletRepository(db)

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// 매치 알림 아웃박스 + 디스패처
	outbox := distributed.NewOutbox(redisClient, "match_notifications")
	notifier := service.NewOutboxNotifier(outbox, zapLogger)
	dispatcher := service.NewNotificationDispatcher(outbox, wsHub, time.Second, zapLogger)
	dispatcher.Start()

	// 매칭 프로세서
	processor := service.NewQueueProcessor(
		queueRepo,
		matchRepo,
		entrySetRepo,
		walletRepo,
		notifier,
		service.ProcessorConfig{
			Interval:        cfg.MatchmakingInterval,
			BatchSize:       cfg.ClaimBatchSize,
			LockTimeout:     cfg.ClaimLockTimeout,
			RematchLookback: cfg.RematchLookback,
		},
		zapLogger,
	)
	processor.Start()

	// 분산 사이클 조정자: 엔트리 입장 이벤트로 사이클을 앞당긴다
	coordinator := distributed.NewCoordinator(redisClient, zapLogger)
	coordinatorCtx, cancelCoordinator := context.WithCancel(context.Background())
	go func() {
		err := coordinator.Start(coordinatorCtx, func(event distributed.QueueEvent) error {
			processor.RunCycle(coordinatorCtx)
			return nil
		})
		if err != nil && err != context.Canceled {
			logger.Error("Queue coordinator exited", "error", err)
		}
	}()

	// Service 초기화
	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	userService := service.NewUserService(userRepo, jwtManager)
	matchService := service.NewMatchService(matchRepo)
	queueService := service.NewQueueService(
		queueRepo,
		entrySetRepo,
		userRepo,
		walletRepo,
		coordinator,
		cfg.QueueTTL,
		cfg.MatchmakingInterval,
		zapLogger,
	)

	// 분산 Rate Limiter (인스턴스 간 공유)
	redisLimiter := ratelimit.NewRedisRateLimiter(redisClient, "ratelimit:", cfg.EnqueuePerMinute, time.Minute)

	// 라우터 설정
	router := api.SetupRouter(cfg, api.Deps{
		QueueService: queueService,
		MatchService: matchService,
		UserService:  userService,
		Hub:          wsHub,
		RateLimiter:  redisLimiter,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 백그라운드 서비스 정지
	coordinator.Stop()
	cancelCoordinator()
	processor.Stop()
	dispatcher.Stop()

	// 10초 타임아웃으로 종료
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
