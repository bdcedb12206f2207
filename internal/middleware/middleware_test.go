package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stallpay/stallpay/internal/logging"
)

func newCache(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache, func() {
		cache.Close()
		mr.Close()
	}
}

func setupIdempotencyApp(t *testing.T) (*fiber.App, *atomic.Int64, func()) {
	t.Helper()
	cache, cleanup := newCache(t)

	var handled atomic.Int64
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/withdrawals", func(c *fiber.Ctx) error {
		handled.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"withdrawal_id": "w-1"})
	})

	return app, &handled, cleanup
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReplaysWithoutReexecuting(t *testing.T) {
	app, handled, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	send := func() (int, string) {
		req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", strings.NewReader("{}"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(idempotencyKeyHeader, "retry-1")
		req.Header.Set("X-Username", "bob")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode, string(payload)
	}

	status1, body1 := send()
	status2, body2 := send()

	if status1 != fiber.StatusCreated || status2 != fiber.StatusCreated {
		t.Fatalf("statuses = %d, %d", status1, status2)
	}
	if body1 != body2 {
		t.Fatalf("replayed body differs: %q vs %q", body1, body2)
	}
	if handled.Load() != 1 {
		t.Fatalf("handler executed %d times, want 1", handled.Load())
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, handled, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	for _, user := range []string{"alice", "bob"} {
		req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", strings.NewReader("{}"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(idempotencyKeyHeader, "shared-key")
		req.Header.Set("X-Username", user)

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test for %s: %v", user, err)
		}
		resp.Body.Close()
	}

	// Same key from two users must not replay across them.
	if handled.Load() != 2 {
		t.Fatalf("handler executed %d times, want 2", handled.Load())
	}
}

func TestAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	app := fiber.New()
	app.Use("/admin", AdminKey(string(hash)))
	app.Post("/admin/adjustments", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	cases := []struct {
		name   string
		key    string
		expect int
	}{
		{"missing key", "", fiber.StatusUnauthorized},
		{"wrong key", "guess", fiber.StatusForbidden},
		{"correct key", "swordfish", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/admin/adjustments", nil)
			if tc.key != "" {
				req.Header.Set(adminKeyHeader, tc.key)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.expect {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.expect)
			}
		})
	}
}

func TestAdminKeyDisabledWithoutHash(t *testing.T) {
	app := fiber.New()
	app.Use("/admin", AdminKey(""))
	app.Post("/admin/adjustments", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodPost, "/admin/adjustments", nil)
	req.Header.Set(adminKeyHeader, "anything")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
}

func TestWithdrawRateLimit(t *testing.T) {
	cache, cleanup := newCache(t)
	defer cleanup()

	app := fiber.New()
	app.Use(WithdrawRateLimit(cache, 2))
	app.Post("/withdrawals", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", nil)
		req.Header.Set("X-Username", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := send("bob"); status != fiber.StatusCreated {
		t.Fatalf("first request: %d", status)
	}
	if status := send("bob"); status != fiber.StatusCreated {
		t.Fatalf("second request: %d", status)
	}
	if status := send("bob"); status != fiber.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", status)
	}

	// Another user has an independent budget.
	if status := send("carol"); status != fiber.StatusCreated {
		t.Fatalf("other user blocked: %d", status)
	}
}

func TestWithdrawRateLimitWindowAlwaysExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(WithdrawRateLimit(cache, 1))
	app.Post("/withdrawals", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func() int {
		req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", nil)
		req.Header.Set("X-Username", "bob")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	send()
	// The counter key must never exist without a TTL, even after repeated
	// increments, or a user could stay limited forever.
	if ttl := mr.TTL("rl:withdraw:bob"); ttl <= 0 {
		t.Fatalf("counter key has no expiry: %v", ttl)
	}
	send()
	if ttl := mr.TTL("rl:withdraw:bob"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("window ttl out of range after second hit: %v", ttl)
	}

	if status := send(); status != fiber.StatusTooManyRequests {
		t.Fatalf("over-limit request: %d, want 429", status)
	}

	// Once the window lapses the user is unblocked.
	mr.FastForward(time.Minute + time.Second)
	if status := send(); status != fiber.StatusCreated {
		t.Fatalf("request after window lapse: %d, want 201", status)
	}
}

func TestWithdrawRateLimitNoCacheIsNoop(t *testing.T) {
	app := fiber.New()
	app.Use(WithdrawRateLimit(nil, 1))
	app.Post("/withdrawals", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/withdrawals", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("request %d limited without cache: %d", i, resp.StatusCode)
		}
	}
}
