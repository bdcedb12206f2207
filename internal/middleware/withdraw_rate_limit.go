package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// WithdrawRateLimit caps withdrawal requests per user per minute using Redis
// if available. The limit is a brake on automated drain attempts; the ledger
// itself still serializes the balance checks. The increment and the expiry
// are pipelined, and the expiry is NX so the window cannot be left behind
// without a TTL if the process dies mid-request.
func WithdrawRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 3
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		user := c.Get("X-Username")
		if user == "" {
			user = c.IP()
		}
		key := "rl:withdraw:" + user

		pipe := cache.TxPipeline()
		cnt := pipe.Incr(c.UserContext(), key)
		pipe.ExpireNX(c.UserContext(), key, time.Minute)
		if _, err := pipe.Exec(c.UserContext()); err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt.Val() > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many withdrawal requests, try again later")
		}
		return c.Next()
	}
}
