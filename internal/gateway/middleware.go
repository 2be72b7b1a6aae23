package gateway

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/drblury/relayflow/internal/runtime/directives"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/runtime/tracing"
)

const (
	directiveRole  = "gateway"
	traceIDHeader  = "traceId"
	unmatchedRoute = "unmatched"
)

// traceMiddleware opens the server span, continuing the caller's trace, and
// echoes the trace id in the traceId response header.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		ctx, span := tracing.StartHTTP(c.Request.Context(), c.Request.Header, c.Request.Method, route)
		defer span.End()

		if id := tracing.TraceID(ctx); id != "" {
			c.Header(traceIDHeader, id)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}

// loadTestMiddleware honours the gateway delay directives and forwards every
// directive header to the publishes made for this request.
func loadTestMiddleware(logger loggingpkg.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		forwarded := directives.FromHTTP(c.Request.Header)
		if len(forwarded) == 0 {
			c.Next()
			return
		}

		ctx := directives.WithForwarded(c.Request.Context(), forwarded)
		c.Request = c.Request.WithContext(ctx)

		set := directives.Parse(forwarded)
		before := set.Delay(directiveRole, directives.PhaseBefore)
		after := set.Delay(directiveRole, directives.PhaseAfter)
		if before > 0 || after > 0 {
			logger.Debug("Applying load test delays", loggingpkg.LogFields{
				"trace_id":  tracing.TraceID(ctx),
				"before_ms": before.Milliseconds(),
				"after_ms":  after.Milliseconds(),
			})
		}

		if err := directives.Sleep(ctx, before); err != nil {
			c.Abort()
			return
		}
		c.Next()
		_ = directives.Sleep(ctx, after)
	}
}

func accessLogMiddleware(logger loggingpkg.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request", loggingpkg.LogFields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"query":       c.Request.URL.RawQuery,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"trace_id":    tracing.TraceID(c.Request.Context()),
		})
	}
}
