package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polls-backend/api"
	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/handlers"
	"polls-backend/logger"
	"polls-backend/metrics"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/routes"
	"polls-backend/service"
	"polls-backend/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("polls-backend", "info").WithError(err).Fatal("加载配置失败")
	}

	log := logger.NewLogger("polls-backend", cfg.LogLevel)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化数据库连接
	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("无法初始化数据库")
	}
	log.WithField("driver", cfg.DBDriver).Info("数据库连接初始化成功")

	// Redis可选，不可用时限流退化为进程内实现
	ctx := context.Background()
	redisClient, err := cache.NewRedisClient(ctx, cfg, log)
	if err != nil && !errors.Is(err, cache.ErrRedisNotAvailable) {
		log.WithError(err).Warn("Redis初始化失败，使用进程内限流")
	}

	if cfg.Environment == "development" && cfg.SeedSampleData {
		var locker database.Locker
		if redisClient != nil {
			locker = cache.NewDistributedLockService(redisClient)
		}
		if err := database.SeedSampleData(ctx, db, locker); err != nil {
			log.WithError(err).Error("创建示例数据失败")
		}
	}

	m := metrics.New()
	repo := repository.NewQuestionRepository(db)

	// 实时结果推送只读结果，不需要通知和指标
	hub := websocket.NewHub(service.NewPollService(repo, nil, nil, log).GetQuestionResults, log)

	// 多实例部署时通过Redis把结果变更广播给其他实例的订阅者
	busCtx, stopBus := context.WithCancel(ctx)
	defer stopBus()
	var notifier service.ResultsNotifier = hub
	if redisClient != nil {
		bus := mq.NewResultsBus(redisClient, hub, log)
		notifier = bus
		go func() {
			if err := bus.Run(busCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("结果总线异常退出")
			}
		}()
	}
	polls := service.NewPollService(repo, notifier, m, log)
	admin := service.NewAdminService(repo)

	deps := routes.Dependencies{
		Polls:   handlers.NewPollHandler(polls, log),
		Admin:   api.NewAdminController(admin, cfg.AdminKey, log),
		Live:    websocket.NewHandler(hub),
		Metrics: m,
		Log:     log,
	}

	// 避免把nil指针包装成非nil接口
	if redisClient != nil {
		deps.Health = handlers.NewHealthHandler(db, redisClient)
	} else {
		deps.Health = handlers.NewHealthHandler(db, nil)
	}

	if cfg.RateLimitEnabled {
		if redisClient != nil {
			deps.RateLimiter = cache.NewRateLimiterFromConfig(cfg, redisClient)
		} else {
			deps.RateLimiter = cache.NewRateLimiterFromConfig(cfg, nil)
		}
		log.Infof("限流器已初始化：全局速率=%d/秒，客户端速率=%d/秒", cfg.GlobalRateLimit, cfg.UserRateLimit)
	}

	// 启动服务器
	router := routes.SetupRouter(deps)
	srv := routes.StartServer(router, cfg.ServerPort, log)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("关闭服务器...")

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("服务器强制关闭")
	}

	stopBus()
	database.Close(db)
	cache.CloseRedis(redisClient, log)

	log.Info("服务器优雅关闭")
}
