package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"polls-backend/cache"
	"polls-backend/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	NumCPU       int       `json:"num_cpu"`
	DBStatus     string    `json:"db_status"`
	RedisStatus  string    `json:"redis_status"`
}

// Version 应用版本，可通过构建参数注入
var Version = "0.1.0"

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db        *gorm.DB
	redis     cache.RedisClient
	startTime time.Time
}

// NewHealthHandler 创建健康检查处理器，redis为nil表示未启用
func NewHealthHandler(db *gorm.DB, redis cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, startTime: time.Now()}
}

// RegisterRoutes 注册健康检查路由
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.HealthCheck)
	rg.GET("/status", h.SystemStatus)
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息，数据库不可用时返回503
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:       "ok",
		Version:      Version,
		Uptime:       time.Since(h.startTime).String(),
		StartTime:    h.startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
		RedisStatus:  "disabled",
	}

	if err := database.Ping(ctx, h.db); err != nil {
		info.Status = "degraded"
		info.DBStatus = "error"
	}

	if h.redis != nil {
		info.RedisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			info.RedisStatus = "error"
		}
	}

	code := http.StatusOK
	if info.DBStatus != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, info)
}
