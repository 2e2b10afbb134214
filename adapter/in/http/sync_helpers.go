// Package http contains the fiber HTTP handlers.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"sync_server/core/port/out"
	"sync_server/pkg/response"
)

// UserID extracts the caller identity from the X-User-ID header. The auth
// handshake lives in front of this service; an empty header is a 401.
func UserID(c *fiber.Ctx) (string, error) {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return "", response.Unauthorized(c, "X-User-ID header required")
	}
	return userID, nil
}

// serviceError maps a service failure onto the standard error envelope.
func serviceError(c *fiber.Ctx, err error, operation string) error {
	if errors.Is(err, out.ErrNotFound) {
		return response.NotFound(c, operation+": not found")
	}

	var providerErr *out.ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.Code {
		case out.ProviderErrNotFound:
			return response.NotFound(c, providerErr.Message)
		case out.ProviderErrAuth, out.ProviderErrTokenExpired:
			return response.Unauthorized(c, providerErr.Message)
		case out.ProviderErrRateLimit:
			return response.Error(c, fiber.StatusTooManyRequests, "RATE_LIMITED", providerErr.Message)
		}
	}

	return response.InternalError(c, operation+" failed")
}
