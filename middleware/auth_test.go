package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"quest-service/apperr"

	"github.com/gofiber/fiber/v2"
)

func newTestFiber() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := apperr.As(err); ok {
				return c.Status(e.HTTPStatus()).SendString(string(e.Code))
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
}

func newUserApp() *fiber.App {
	app := newTestFiber()
	app.Get("/me", UserContextMiddleware(), func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		return c.SendString(UserID(c) + "|" + strings.Join(roles, ","))
	})
	app.Get("/ops", UserContextMiddleware(), RequireRole("admin"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestUserContextMiddleware(t *testing.T) {
	app := newUserApp()

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-User-ID", " user-1 ")
	req.Header.Set("X-User-Roles", "player, ,admin")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "user-1|player,admin" {
		t.Fatalf("body = %q", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/me", nil), -1)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing user: status %d", resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	app := newUserApp()
	tests := []struct {
		roles string
		want  int
	}{
		{"", fiber.StatusUnauthorized},
		{"player", fiber.StatusUnauthorized},
		{"administrator", fiber.StatusUnauthorized},
		{"player,admin", fiber.StatusOK},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/ops", nil)
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Roles", tc.roles)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("roles %q: status %d, want %d", tc.roles, resp.StatusCode, tc.want)
		}
	}
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := newTestFiber()
	app.Use(GatewayAuthMiddleware("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	tests := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusUnauthorized},
		{"Bearer nope", fiber.StatusUnauthorized},
		{"Bearer secret", fiber.StatusOK},
		{"secret", fiber.StatusOK},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("header %q: status %d, want %d", tc.header, resp.StatusCode, tc.want)
		}
	}
}
