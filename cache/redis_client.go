package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisClient 本服务用到的Redis操作，*redis.Client满足该接口
type RedisClient interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
}

var _ RedisClient = (*redis.Client)(nil)
