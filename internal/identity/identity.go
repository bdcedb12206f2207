package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/ledger"
)

const principalLocal = "principal"

// Principal is an already-authenticated username and role pair. Session
// management lives upstream; the ledger trusts what the gateway resolved.
type Principal struct {
	Username string
	Role     ledger.Role
}

// Middleware extracts the authenticated principal from the X-Username and
// X-Role headers set by the upstream auth layer. Requests without both are
// rejected.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := c.Get("X-Username")
		roleHeader := c.Get("X-Role")
		if username == "" || roleHeader == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing identity headers")
		}
		role, err := ledger.ParseRole(roleHeader)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		c.Locals(principalLocal, Principal{Username: username, Role: role})
		return c.Next()
	}
}

// FromContext returns the principal resolved by Middleware.
func FromContext(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalLocal).(Principal)
	return p, ok
}
