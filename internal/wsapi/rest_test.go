package wsapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/auth"
	"github.com/kjlabs/polyglot-broadcast/internal/config"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
)

func newTestDeps(t *testing.T) (*fiber.App, *Deps) {
	t.Helper()
	kv := store.NewMemoryKV()
	deps := &Deps{
		Cfg:         &config.Config{Session: config.SessionConfig{DefaultTTL: time.Hour}},
		Log:         zap.NewNop(),
		Sessions:    session.NewRegistry(kv, 10, 3, time.Millisecond, time.Hour, zap.NewNop()),
		Connections: connection.NewRegistry(kv, time.Hour),
		Validator:   auth.NewValidator("test-secret", time.Minute, true),
		Limiter: ratelimit.NewLimiter(map[ratelimit.Operation]ratelimit.Budget{
			ratelimit.OpConnectionAttempt: {Limit: 1000, Window: time.Minute},
			ratelimit.OpSessionCreate:     {Limit: 1000, Window: time.Minute},
		}, 100, 1000),
	}

	app := fiber.New()
	app.Use(deps.AuthMiddleware)
	app.Post("/sessions", deps.CreateSession)
	app.Get("/sessions/:sessionId", deps.GetSession)
	app.Get("/health", deps.Health)
	return app, deps
}

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	app, _ := newTestDeps(t)
	req := httptest.NewRequest(fiber.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateSessionRequiresAuthentication(t *testing.T) {
	app, _ := newTestDeps(t)
	body, _ := json.Marshal(map[string]string{"sourceLanguage": "en"})
	req := httptest.NewRequest(fiber.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", resp.StatusCode)
	}
}

func TestCreateSessionWithValidTokenSucceeds(t *testing.T) {
	app, _ := newTestDeps(t)
	token := signTestToken(t, "speaker-1")

	body, _ := json.Marshal(map[string]string{"sourceLanguage": "en"})
	req := httptest.NewRequest(fiber.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["sessionId"] == "" || out["sessionId"] == nil {
		t.Fatalf("expected a session id in the response, got %v", out)
	}
}

func TestGetSessionNotFoundReturns404(t *testing.T) {
	app, _ := newTestDeps(t)
	req := httptest.NewRequest(fiber.MethodGet, "/sessions/does-not-exist", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", resp.StatusCode)
	}
}
