package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"laneduel/internal/logger"
)

var rateLimiter *redis.Client

const (
	rateLimitWindow = time.Minute
	rateLimitMax    = 30 // подключений с одного IP в минуту
)

// InitRedisRateLimiter подключает Redis для лимитера. Пустой URL — лимитер
// выключен, запросы проходят свободно.
func InitRedisRateLimiter(redisURL string) {
	if redisURL == "" {
		logger.Warn("rate limiter disabled: REDIS_URL not set")
		return
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("rate limiter disabled: bad REDIS_URL", "error", err)
		return
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("rate limiter disabled: redis unreachable", "error", err)
		return
	}

	rateLimiter = client
	logger.Info("rate limiter enabled", "window", rateLimitWindow, "max", rateLimitMax)
}

// RateLimit caps connection attempts per client IP with a fixed window
// (INCR + EXPIRE). Fails open: a Redis hiccup never blocks players.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rateLimiter == nil {
			c.Next()
			return
		}

		key := "ratelimit:ws:" + c.ClientIP()
		ctx := c.Request.Context()

		count, err := rateLimiter.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limiter incr failed", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			rateLimiter.Expire(ctx, key, rateLimitWindow)
		}

		if count > rateLimitMax {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		c.Next()
	}
}
