package wsapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/auth"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
)

// authIdentity is an alias so REST/WS code can speak in wsapi's own
// vocabulary while sharing component D's verified-identity shape.
type authIdentity = auth.Identity

// AuthMiddleware validates the bearer token on every REST request and
// stashes the verified identity in c.Locals("identity"); any GET request
// without a bearer token is let through with no identity, whatever the
// anonymous-listener setting (handlers that require one check for its
// presence).
func (d *Deps) AuthMiddleware(c *fiber.Ctx) error {
	if _, err := d.Limiter.Check(c.Context(), ratelimit.OpConnectionAttempt, "ip", c.IP()); err != nil {
		return writeErr(c, err)
	}

	header := c.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		if c.Method() == fiber.MethodGet {
			return c.Next()
		}
		return writeErr(c, apperr.Auth(apperr.CodeAuthMissingToken, "missing bearer token"))
	}

	identity, err := d.Validator.Validate(c.Context(), token)
	if err != nil {
		return writeErr(c, err)
	}
	c.Locals("identity", identity)
	return c.Next()
}
