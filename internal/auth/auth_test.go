package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/testutil"

	"github.com/gofiber/fiber/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestApp(t *testing.T) (*fiber.App, func(method, path string, body any, token string) *http.Response) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "Asha", "asha@example.com", models.RoleAccountant, true)
	testutil.CreateUser(t, db, "Old", "old@example.com", models.RoleStaff, false)

	app := fiber.New()
	app.Post("/auth/register-admin", RegisterAdminHandler(db))
	app.Post("/auth/login", LoginHandler(db, testSecret))
	protected := app.Group("", JWTMiddleware(testSecret))
	protected.Get("/auth/me", MeHandler(db))
	protected.Get("/admin-only", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	do := func(method, path string, body any, token string) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}
	return app, do
}

func TestLoginAndMe(t *testing.T) {
	_, do := newTestApp(t)

	resp := do(http.MethodPost, "/auth/login", LoginRequest{Email: " ASHA@example.com", Password: "secret123"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&login)
	if login.Token == "" {
		t.Fatal("empty token")
	}

	resp = do(http.MethodGet, "/auth/me", nil, login.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	var me map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&me)
	if me["email"] != "asha@example.com" || me["role"] != "accountant" {
		t.Errorf("me = %v", me)
	}

	// accountant is not admin
	resp = do(http.MethodGet, "/admin-only", nil, login.Token)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("admin-only status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginFailures(t *testing.T) {
	_, do := newTestApp(t)

	if resp := do(http.MethodPost, "/auth/login", LoginRequest{Email: "asha@example.com", Password: "nope"}, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}
	if resp := do(http.MethodPost, "/auth/login", LoginRequest{Email: "old@example.com", Password: "secret123"}, ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("inactive login status = %d, want 403", resp.StatusCode)
	}
	if resp := do(http.MethodGet, "/auth/me", nil, "garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterAdminOnlyOnce(t *testing.T) {
	_, do := newTestApp(t)

	body := RegisterAdminRequest{Name: "Root", Email: "root@example.com", Password: "hunter22"}
	if resp := do(http.MethodPost, "/auth/register-admin", body, ""); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register status = %d, want 201", resp.StatusCode)
	}
	body.Email = "second@example.com"
	if resp := do(http.MethodPost, "/auth/register-admin", body, ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("second register status = %d, want 403", resp.StatusCode)
	}

	resp := do(http.MethodPost, "/auth/login", LoginRequest{Email: "root@example.com", Password: "hunter22"}, "")
	var login struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&login)
	if resp := do(http.MethodGet, "/admin-only", nil, login.Token); resp.StatusCode != http.StatusNoContent {
		t.Errorf("admin-only status = %d, want 204", resp.StatusCode)
	}
}
