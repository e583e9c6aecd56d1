// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Checkout requests
// carry customer identifiers and gifter names, so the logger never records
// bodies, masks identity headers, and scrubs query values before emitting a
// structured line per request.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxQueryLogLength = 2048

// RedactOptions configures RedactingLogger.
//
// MaskHeaders and MaskParams extend the built-in header and query-parameter
// lists whose values are replaced with "[REDACTED]". Matching is
// case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only so gift ids (hex UUIDs) are not mistaken for phone numbers.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger logs method, route, scrubbed query, selected headers,
// status, size and latency. Level is info, warn for 4xx, error for 5xx or
// when handlers attached gin errors. Websocket upgrades are logged when the
// connection ends.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie", HeaderCustomerID}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"customer_id", "gifter_name", "email"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()
		ws := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")

		query := redactQuery(c.Request.URL.RawQuery, maskParams)
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		lg, scoped := c.Value(loggerKey).(*zerolog.Logger)
		if !scoped {
			rid := c.Writer.Header().Get(requestIDHeader)
			if rid == "" {
				rid = c.GetHeader(requestIDHeader)
			}
			l := log.With().Str("request_id", rid).Logger()
			lg = &l
		}

		ev := lg.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		_, hasCustomer := CustomerID(c)

		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(query, maxQueryLogLength)).
			Bool("websocket", ws).
			Bool("has_customer", hasCustomer).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// redactQuery masks listed parameters and scrubs the rest, returning the
// decoded pairs in key order. Unparseable queries are scrubbed as a whole.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return scrub(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		_, masked := mask[strings.ToLower(k)]
		for _, v := range vals[k] {
			if masked {
				v = "[REDACTED]"
			} else {
				v = scrub(v)
			}
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}

func lowerSet(base, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
