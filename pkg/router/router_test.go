package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestParseBodyLimit(t *testing.T) {
	testCases := map[string]int{
		"8M":   8 * 1024 * 1024,
		"512k": 512 * 1024,
		"1G":   1024 * 1024 * 1024,
		"100":  100,
		"":     8 * 1024 * 1024,
		"lots": 8 * 1024 * 1024,
	}
	for in, expected := range testCases {
		if got := parseBodyLimit(in); got != expected {
			t.Errorf("parseBodyLimit(%q) = %d, want %d", in, got, expected)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	testCases := map[string]string{
		"":         "",
		"/":        "",
		"api":      "/api",
		"/api/v1/": "/api/v1",
		"  /api  ": "/api",
	}
	for in, expected := range testCases {
		if got := normalizeBaseURL(in); got != expected {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", in, got, expected)
		}
	}
}

func decode(t *testing.T, resp *http.Response) Response {
	t.Helper()
	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHttpErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: HttpErrorHandler})
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusForbidden, "nope") })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fiber", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decode(t, resp); resp.StatusCode != fiber.StatusForbidden || body.Status || body.Message != "nope" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/plain", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decode(t, resp); resp.StatusCode != fiber.StatusInternalServerError || body.Error != "boom" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RecoveryMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decode(t, resp); resp.StatusCode != fiber.StatusInternalServerError || body.Error != "kaboom" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}
}

func TestHttpRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals("request_id").(string)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "abc-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderXRequestID); got != "abc-123" {
		t.Fatalf("expected propagated id, got %q", got)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderXRequestID); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestHttpRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(HttpRateLimit(2, func(c *fiber.Ctx) string { return c.Get("X-User") }))
	app.Get("/", func(c *fiber.Ctx) error { return ResponseSuccess(c, "") })

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		return resp.StatusCode
	}

	if send("a") != fiber.StatusOK || send("a") != fiber.StatusOK {
		t.Fatal("burst must be allowed")
	}
	if code := send("a"); code != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("b"); code != fiber.StatusOK {
		t.Fatalf("other users must not be throttled, got %d", code)
	}
}
