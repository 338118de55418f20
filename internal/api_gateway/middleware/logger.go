package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/gin-gonic/gin"
)

// identityHeaders are copied into the request log when present.
var identityHeaders = map[string]string{
	"X-Contributor-ID": "contributor_ref",
	"X-Operator-ID":    "operator_ref",
}

// Logger logs one line per request after it is served. Server errors log at
// ERROR, client errors at WARN. It must run after CorrelationID.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"correlation_id", GetCorrelationID(c),
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		for header, key := range identityHeaders {
			if v := c.GetHeader(header); v != "" {
				attrs = append(attrs, key, v)
			}
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", attrs...)
		default:
			logger.Info("HTTP request", attrs...)
		}
	}
}

// Metrics records request latency by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), start)
	}
}
