package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wishlane/backend/pkg/logger"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := logger.GenerateRequestID()
		c.Locals("requestID", requestID)

		err := c.Next()

		latency := time.Since(start)
		statusCode := c.Response().StatusCode()

		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   statusCode,
			"latency_ms":    latency.Milliseconds(),
			"user_agent":    c.Get("User-Agent"),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
			"request_id":    requestID,
		}

		userID := logger.GetUserIDFromContext(c)
		if userID != nil {
			if statusCode >= 400 {
				logger.ErrorWithUser(*userID, "http_request", err, details)
			} else {
				logger.InfoWithUser(*userID, "http_request", details)
			}
		} else {
			if statusCode >= 400 {
				logger.Error("http_request", err, details)
			} else {
				logger.Info("http_request", details)
			}
		}

		return err
	}
}

func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		statusCode := c.Response().StatusCode()
		userID := logger.GetUserIDFromContext(c)

		if statusCode == 403 || statusCode == 404 {
			reason := "access_denied"
			if statusCode == 404 {
				reason = "not_found"
			}
			details := map[string]interface{}{
				"method":  c.Method(),
				"path":    c.Path(),
				"ip":      c.IP(),
				"user_id": userID,
				"reason":  reason,
			}

			if userID != nil {
				logger.WarnWithUser(*userID, reason, details)
			} else {
				logger.Warn(reason+"_unauthenticated", details)
			}
		}

		return err
	}
}
