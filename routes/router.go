package routes

import (
	"errors"
	"net/http"
	"time"

	"polls-backend/api"
	"polls-backend/cache"
	"polls-backend/handlers"
	"polls-backend/logger"
	"polls-backend/metrics"
	"polls-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 路由依赖的处理器和中间件
type Dependencies struct {
	Polls   *handlers.PollHandler
	Health  *handlers.HealthHandler
	Admin   *api.AdminController
	Live    *websocket.Handler
	Metrics *metrics.Metrics
	Log     *logger.Logger

	// RateLimiter 为nil时不限流
	RateLimiter *cache.UserRateLimiter
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(deps.Log))
	router.Use(deps.Metrics.Middleware())

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", api.AdminKeyHeader, logger.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", logger.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/metrics", deps.Metrics.Handler())

	// 定义API路由
	apiGroup := router.Group("/api")
	{
		if deps.RateLimiter != nil {
			apiGroup.Use(handlers.RateLimitMiddleware(deps.RateLimiter, deps.Log))
		}

		deps.Health.RegisterRoutes(apiGroup)
		deps.Polls.RegisterRoutes(apiGroup)
		apiGroup.GET("/polls/:id/results/ws", deps.Live.HandleResults)
		deps.Admin.RegisterRoutes(apiGroup)
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, port string, log *logger.Logger) *Server {
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Infof("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("服务器启动失败")
		}
	}()

	return srv
}
