// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation and caller identity:
//
//   - RequestID() reuses or generates the X-Request-ID correlation id.
//   - Identity() reads the till/customer headers sent by checkout terminals
//     and display screens and stores them in the Gin context.
//   - ScopedLogger() attaches a request-scoped zerolog.Logger that handlers
//     and services retrieve with LoggerFrom(). The access line itself is
//     written by RedactingLogger.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//
// Recommended order: RequestID, Identity, ScopedLogger, RedactingLogger,
// Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// CustomerIDKey holds the optional loyalty customer id of the caller.
	CustomerIDKey = "customerID"
	// TerminalIDKey holds the id of the till or display making the call.
	TerminalIDKey = "terminalID"

	HeaderCustomerID = "X-Customer-ID"
	HeaderTerminalID = "X-Terminal-ID"

	loggerKey = "logger"

	maxIdentityLen = 64
)

// RequestID attaches (or propagates) a correlation identifier per request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Identity copies X-Customer-ID and X-Terminal-ID into the context. Values
// longer than 64 bytes are ignored rather than truncated.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := strings.TrimSpace(c.GetHeader(HeaderCustomerID)); v != "" && len(v) <= maxIdentityLen {
			c.Set(CustomerIDKey, v)
		}
		if v := strings.TrimSpace(c.GetHeader(HeaderTerminalID)); v != "" && len(v) <= maxIdentityLen {
			c.Set(TerminalIDKey, v)
		}
		c.Next()
	}
}

// CustomerID returns the caller's customer id, if any.
func CustomerID(c *gin.Context) (string, bool) {
	s := asString(c.Value(CustomerIDKey))
	return s, s != ""
}

// ScopedLogger stores a logger carrying request_id, route and terminal_id
// under the "logger" context key.
func ScopedLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", asString(c.Value(requestIDKey))).
			Str("terminal_id", asString(c.Value(TerminalIDKey))).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &l)
		c.Next()
	}
}

// Recovery intercepts panics, logs a stack trace and, when nothing has been
// written yet, responds with the standard internal_error envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := asString(c.Value(requestIDKey))
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// ScopedLogger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if c != nil {
		if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
