package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*fiber.App, *auth.TokenManager) {
	t.Helper()

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(tokens), func(c *fiber.Ctx) error {
		identity, _ := IdentityFrom(c)
		return c.JSON(fiber.Map{"user_id": identity.UserID, "role": identity.Role})
	})
	app.Get("/admin", NewAuthMiddleware(tokens), RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, tokens
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens := newApp(t)
	customerToken, err := tokens.Issue("c-1", auth.RoleCustomer)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + customerToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tc.status == http.StatusUnauthorized {
				require.Equal(t, "Authentication error", body["error"])
				require.Equal(t, "AUTHENTICATION_ERROR", body["code"])
			} else {
				require.Equal(t, "c-1", body["user_id"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	app, tokens := newApp(t)

	customerToken, err := tokens.Issue("c-1", auth.RoleCustomer)
	require.NoError(t, err)
	adminToken, err := tokens.Issue("a-1", auth.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+customerToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
