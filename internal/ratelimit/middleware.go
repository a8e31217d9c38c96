package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Gateway is the choke point every request passes through. It classifies the
// route, consults the limiter, and short-circuits with 429 before any handler
// runs. Any internal failure allows the request: enforcement never costs
// availability.
func Gateway(limiter *Limiter, jwtSecret string, log *slog.Logger) echo.MiddlewareFunc {
	classifier := Classifier{JWTSecret: jwtSecret}
	log = log.With(slog.String("component", "gateway"))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision, gated := failOpen(log, func() (Decision, bool) {
				class := classifier.Classify(c.Request().Method, c.Request().URL.Path)
				if class == ClassExempt {
					return Decision{Allowed: true}, false
				}
				identity := classifier.Identity(c, class)
				return limiter.Check(c.Request().Context(), identity, class), true
			})

			if gated {
				h := c.Response().Header()
				h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
				h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
				h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))
			}

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter / time.Second)
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"message":     "rate limit exceeded",
					"retry_after": retryAfter,
				})
			}
			return next(c)
		}
	}
}

// failOpen is the one place "allow on infra error" lives: a panic inside
// classification or limiting is logged and the request proceeds ungated.
func failOpen(log *slog.Logger, check func() (Decision, bool)) (decision Decision, gated bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("rate limit check panicked, failing open", slog.Any("panic", r))
			decision = Decision{Allowed: true}
			gated = false
		}
	}()
	return check()
}
