package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailLocal falls back to an in-process token bucket per client.
	FailLocal FailPolicy = iota
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

var errNoRedis = errors.New("redis client is nil")

// CheckRateLimit checks if a resource has exceeded its rate limit.
// Returns true if allowed, false if limit exceeded.
// Rate limiting is disabled when APP_ENV is "test" or "development".
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development":
		return true, nil
	}

	if rdb == nil {
		return false, errNoRedis
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter is a per-client token bucket kept in process memory. Each
// client may spend `limit` requests per `window`, refilled continuously.
type LocalLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	clients map[string]*clientLimiter
}

// NewLocalLimiter creates a limiter allowing limit requests per window per client.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{
		rate:    rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		ttl:     2 * window,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow consumes one token for the client.
func (l *LocalLimiter) Allow(id string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[id]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[id] = cl
		// prune idle clients opportunistically on insert
		for key, other := range l.clients {
			if now.Sub(other.lastAccess) > l.ttl && key != id {
				delete(l.clients, key)
			}
		}
	}
	cl.lastAccess = now
	return cl.limiter.AllowN(now, 1)
}

// RetryAfter estimates the seconds until one token is refilled.
func (l *LocalLimiter) RetryAfter() int {
	secs := int(math.Ceil(1.0 / float64(l.rate)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Clients returns the number of tracked clients.
func (l *LocalLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by the caller's actor id when present, otherwise by remote IP, and
// falls back to an in-process limiter when Redis is unavailable.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailLocal, name...)
}

// RateLimitWithPolicy returns a Fiber middleware enforcing `limit` requests per `window` with a specific failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	local := NewLocalLimiter(limit, window)

	return func(c *fiber.Ctx) error {
		var id string
		if actor, ok := c.Locals("actorID").(string); ok && actor != "" {
			id = "actor:" + actor
		} else {
			id = "ip:" + c.IP()
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		backend := "redis"
		allowed, err := CheckRateLimit(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			switch policy {
			case FailClosed:
				Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
					slog.String("resource", resource), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			case FailOpen:
				return c.Next()
			default:
				backend = "local"
				allowed = local.Allow(resource + ":" + id)
			}
		}

		if !allowed {
			RateLimited.WithLabelValues(resource, backend).Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(local.RetryAfter()))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
