package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport"
	"github.com/sakashimaa/go-grocery/pkg/auth"
)

// IdentityKey is the fiber local holding the authenticated auth.Identity.
const IdentityKey = "identity"

type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func NewAuthMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return unauthorized(c)
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			return unauthorized(c)
		}

		SetIdentity(c, identity)
		return c.Next()
	}
}

// RequireRole admits only callers holding one of roles.
func RequireRole(roles ...auth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return unauthorized(c)
		}

		if !slices.Contains(roles, identity.Role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
				"code":  transport.CodeForbidden,
			})
		}

		return c.Next()
	}
}

func SetIdentity(c *fiber.Ctx, identity auth.Identity) {
	c.Locals(IdentityKey, identity)
}

func IdentityFrom(c *fiber.Ctx) (auth.Identity, bool) {
	identity, ok := c.Locals(IdentityKey).(auth.Identity)
	if !ok || identity.UserID == "" {
		return auth.Identity{}, false
	}
	return identity, true
}

func unauthorized(c *fiber.Ctx) error {
	p := transport.Classify(auth.ErrAuthentication)
	return c.Status(p.Status).JSON(p)
}
