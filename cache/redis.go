package cache

import (
	"context"
	"fmt"
	"time"

	"polls-backend/config"
	"polls-backend/logger"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建Redis客户端并测试连接，未配置REDIS_ADDR时返回ErrRedisNotAvailable
func NewRedisClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, ErrRedisNotAvailable
	}

	log.WithField("addr", cfg.RedisAddr).Info("初始化Redis连接")

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	log.Info("Redis连接初始化成功")
	return client, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis(client *redis.Client, log *logger.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.WithError(err).Error("关闭Redis连接错误")
		return
	}
	log.Info("Redis连接已关闭")
}
