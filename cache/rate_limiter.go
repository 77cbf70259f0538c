package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polls-backend/config"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断key对应的请求是否允许通过
	Allow(ctx context.Context, key string) (bool, error)
}

// 令牌桶算法的Lua脚本，时间单位为毫秒
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last_update = tonumber(state[2]) or now

-- 按经过的时间补充令牌
local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, ttl)

return allowed
`)

// TokenBucketRateLimiter 基于Redis的令牌桶限流器，多个实例共享同一个桶
type TokenBucketRateLimiter struct {
	redisClient redis.Scripter
	prefix      string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
	now         func() time.Time
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client redis.Scripter, prefix string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        rate,
		burst:       burst,
		now:         time.Now,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	// 桶完全填满所需的时间之后状态即可丢弃
	ttl := int64(l.burst)*1000/int64(l.rate) + 1000

	result, err := tokenBucketScript.Run(ctx, l.redisClient,
		[]string{l.prefix + ":" + key},
		l.now().UnixMilli(), l.rate, l.burst, ttl,
	).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// maxLocalKeys 本地限流器最多跟踪的key数量，超过后整体重置
const maxLocalKeys = 10000

// LocalRateLimiter 进程内限流器，每个key一个令牌桶，Redis不可用时使用
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter(perSecond, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow 判断请求是否允许通过
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLocalKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// UserRateLimiter 全局限流加上按客户端限流
type UserRateLimiter struct {
	global RateLimiter
	user   RateLimiter
}

// NewUserRateLimiter 创建新的用户级别限流器
func NewUserRateLimiter(global, user RateLimiter) *UserRateLimiter {
	return &UserRateLimiter{global: global, user: user}
}

// AllowUser 先检查全局限流，再检查该客户端的限流
func (l *UserRateLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	allowed, err := l.global.Allow(ctx, "global")
	if err != nil || !allowed {
		return allowed, err
	}
	return l.user.Allow(ctx, userID)
}

// NewRateLimiterFromConfig 按配置创建限流器，client为nil时使用进程内限流
func NewRateLimiterFromConfig(cfg *config.Config, client redis.Scripter) *UserRateLimiter {
	globalBurst := cfg.GlobalRateLimit * 2
	userBurst := cfg.UserRateLimit * 2

	if client == nil {
		return NewUserRateLimiter(
			NewLocalRateLimiter(cfg.GlobalRateLimit, globalBurst),
			NewLocalRateLimiter(cfg.UserRateLimit, userBurst),
		)
	}
	return NewUserRateLimiter(
		NewTokenBucketRateLimiter(client, "global_api", cfg.GlobalRateLimit, globalBurst),
		NewTokenBucketRateLimiter(client, "user_api", cfg.UserRateLimit, userBurst),
	)
}
