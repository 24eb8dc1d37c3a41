package middleware

import (
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vaultrent/vaultrent/internal/logging"
)

func newIdempotencyApp(t *testing.T) (*fiber.App, *atomic.Int64) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	var hits atomic.Int64

	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/deposits", func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"applied": hits.Load()})
	})
	return app, &hits
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, hits := newIdempotencyApp(t)

	first := httptest.NewRequest(fiber.MethodPost, "/deposits", nil)
	first.Header.Set("Idempotency-Key", "dep-1")
	resp, err := app.Test(first)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	body1, _ := io.ReadAll(resp.Body)

	second := httptest.NewRequest(fiber.MethodPost, "/deposits", nil)
	second.Header.Set("Idempotency-Key", "dep-1")
	resp, err = app.Test(second)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	body2, _ := io.ReadAll(resp.Body)

	if hits.Load() != 1 {
		t.Fatalf("handler must run once, ran %d times", hits.Load())
	}
	if string(body1) != string(body2) {
		t.Fatalf("replayed body differs: %q vs %q", body1, body2)
	}
}

func TestIdempotencyDistinctKeys(t *testing.T) {
	app, hits := newIdempotencyApp(t)

	for _, key := range []string{"dep-1", "dep-2"} {
		req := httptest.NewRequest(fiber.MethodPost, "/deposits", nil)
		req.Header.Set("Idempotency-Key", key)
		if _, err := app.Test(req); err != nil {
			t.Fatalf("request %s: %v", key, err)
		}
	}

	if hits.Load() != 2 {
		t.Fatalf("distinct keys must each run the handler, ran %d times", hits.Load())
	}
}

func TestIdempotencyRequiresKeyOnUnsafeMethods(t *testing.T) {
	app, _ := newIdempotencyApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/deposits", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.StatusCode)
	}
}

func TestIdempotencySkipsSafeMethods(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("GET must bypass idempotency, got %d", resp.StatusCode)
	}
}
