package middleware

// Package middleware deduplicates HTTP requests by their Idempotency-Key header.
// A repeated key replays the first response instead of running the handler again.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/engine"
	"github.com/sicko7947/idemflow/store"
)

const (
	// HeaderIdempotencyKey is the default request header carrying the key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed is set on responses served from a stored result
	HeaderReplayed = "Idempotent-Replayed"
)

// Response is the part of an HTTP response that is stored and replayed
type Response struct {
	Status      int    `json:"status" dynamodbav:"status"`
	ContentType string `json:"contentType,omitempty" dynamodbav:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty" dynamodbav:"body,omitempty"`
}

// Config configures the middleware
type Config struct {
	// Next skips the middleware when it returns true
	Next func(c fiber.Ctx) bool

	// Storage holds replayable responses. Defaults to an in-memory store.
	Storage idemflow.ResultStorage[Response]

	// Idempotency defaults to DefaultConfig at REQUEST level
	Idempotency *idemflow.Config

	// HeaderName defaults to Idempotency-Key
	HeaderName string

	// Methods that require a key. Defaults to POST.
	Methods []string

	// Scope prefixes keys, for example with a tenant or user ID
	Scope func(c fiber.Ctx) string

	// FingerprintBody records the request body so a reused key with a different body
	// is handled by the input mismatch policy
	FingerprintBody bool

	// EngineOptions are passed to the request manager
	EngineOptions []engine.Option
}

func (cfg Config) withDefaults() Config {
	if cfg.Storage == nil {
		cfg.Storage = store.NewMemoryStorage[idemflow.Entry[Response]]()
	}
	if cfg.Idempotency == nil {
		cfg.Idempotency = idemflow.ToPtr(idemflow.DefaultConfig(idemflow.WithLevel(idemflow.LevelRequest)))
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = HeaderIdempotencyKey
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{fiber.MethodPost}
	}
	return cfg
}

// passthrough carries a response that must reach the client without being stored
type passthrough struct {
	resp Response
	err  error
}

func (p *passthrough) Error() string {
	if p.err != nil {
		return p.err.Error()
	}
	return fmt.Sprintf("uncached response with status %d", p.resp.Status)
}

func (p *passthrough) Unwrap() error {
	return p.err
}

// New creates an idempotency middleware
func New(config Config) fiber.Handler {
	cfg := config.withDefaults()
	manager := engine.NewRequestManager(cfg.Storage, *cfg.Idempotency, cfg.EngineOptions...)

	return func(c fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}
		if !slices.Contains(cfg.Methods, c.Method()) {
			return c.Next()
		}

		header := strings.TrimSpace(c.Get(cfg.HeaderName))
		if header == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Missing %s header", cfg.HeaderName),
			})
		}

		key := idemflow.Key(header)
		if cfg.Scope != nil {
			if scope := cfg.Scope(c); scope != "" {
				key = idemflow.Key(scope + ":" + header)
			}
		}

		var fingerprint string
		if cfg.FingerprintBody {
			fingerprint = idemflow.FingerprintBytes(c.Body())
		}

		// c.Next runs on the engine's goroutine, so the handler must not return before it does
		ctx := context.WithoutCancel(c.Context())

		executed := false
		resp, err := manager.ExecuteWithFingerprint(ctx, key, fingerprint, func(_ context.Context) (Response, error) {
			executed = true
			if err := c.Next(); err != nil {
				return Response{}, &passthrough{err: err}
			}
			captured := capture(c)
			if captured.Status >= fiber.StatusInternalServerError {
				return Response{}, &passthrough{resp: captured}
			}
			return captured, nil
		})

		if err == nil {
			if executed {
				return nil
			}
			return writeResponse(c, resp, true)
		}

		var pass *passthrough
		if errors.As(err, &pass) {
			if executed || pass.err != nil {
				return pass.err
			}
			// Another request with this key got a response that was not stored
			return writeResponse(c, pass.resp, false)
		}

		return writeError(c, err, executed)
	}
}

func capture(c fiber.Ctx) Response {
	r := c.Response()
	return Response{
		Status:      r.StatusCode(),
		ContentType: string(r.Header.ContentType()),
		Body:        bytes.Clone(r.Body()),
	}
}

func writeResponse(c fiber.Ctx, resp Response, replayed bool) error {
	if resp.ContentType != "" {
		c.Set(fiber.HeaderContentType, resp.ContentType)
	}
	if replayed {
		c.Set(HeaderReplayed, "true")
	}
	return c.Status(resp.Status).Send(resp.Body)
}

func writeError(c fiber.Ctx, err error, executed bool) error {
	switch {
	case idemflow.IsConflictError(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case idemflow.IsValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case idemflow.IsStorageError(err):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "idempotency storage unavailable"})
	case executed:
		return err
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
