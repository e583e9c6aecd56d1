// Package httpapi wires the HTTP transport (Gin) to the gift services, the
// display hub, middleware and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, CORS, security headers, claim idempotency and rate
// limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftchain-backend/internal/config"
	"github.com/tbourn/go-giftchain-backend/internal/http/handlers"
	"github.com/tbourn/go-giftchain-backend/internal/http/middleware"
	"github.com/tbourn/go-giftchain-backend/internal/realtime"
	"github.com/tbourn/go-giftchain-backend/internal/repo"
	"github.com/tbourn/go-giftchain-backend/internal/services"
)

// ClaimScope namespaces idempotency records of gift claims.
const ClaimScope = "gift_claim"

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	wsPath      = "/ws/gifts"
	claimRoute  = "/gifts/:id/claim"
)

// Deps are the collaborators the routes are bound to.
type Deps struct {
	DB       *gorm.DB
	Gifts    *services.GiftService
	Payments *services.PostPaymentHandler
	Hub      *realtime.Hub
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, Identity, ScopedLogger: correlation and caller fields
//  3. RedactingLogger: access log with customer identifiers scrubbed
//  4. Recovery: after the logger so panics are logged with request fields
//  5. Body size limit
//  6. Metrics
//  7. Rate limiter (exempts websocket, health and metrics)
//  8. CORS and security headers
//
// Keyed claims skip the global limiter and are limited on the route, after
// the idempotency validator, so replays can bypass the bucket. Gzip
// wraps the REST group only; the websocket endpoint must stay uncompressed
// to be hijacked.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity(), middleware.ScopedLogger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics(middleware.MetricsOptions{Skip: []string{metricsPath, healthPath}}))
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:    cfg.RateRPS,
		Burst:  cfg.RateBurst,
		Key:    middleware.KeyByCaller(),
		Exempt: exemptFromRateLimit,
	})
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET(healthPath, healthHandler(deps.DB))
	if deps.Hub != nil {
		r.GET(wsPath, deps.Hub.ServeWS)
	}
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var hub handlers.HubStatus
	if deps.Hub != nil {
		hub = deps.Hub
	}
	h := handlers.New(deps.Gifts, deps.Payments, hub,
		handlers.WithStats(listStats(deps.DB)),
		handlers.WithClaimRecorder(claimRecorder(deps.DB, cfg.IdempotencyTTL)),
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// Gifts
		api.GET("/gifts", h.ListGifts)
		api.POST("/gifts", h.CreateGift)
		api.GET("/gifts/count", h.CountGifts)
		api.POST("/gifts/discounts", h.QuoteDiscounts)
		api.GET("/gifts/:id", h.GetGift)
		api.GET("/gifts/:id/chain", h.GetChain)
		api.POST(claimRoute,
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: ClaimScope}, idempotencyLookup(deps.DB)),
			rl.Handler(),
			h.ClaimGift,
		)

		// Orders
		api.POST("/orders/:id/post-payment", h.PostPayment)

		// Realtime
		api.GET("/realtime/status", h.RealtimeStatus)
	}
}

// idempotencyLookup adapts repo.GetIdempotency to the middleware contract.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, resourceID, key string, now time.Time) (*middleware.Replay, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, resourceID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &middleware.Replay{GiftUnitID: rec.GiftUnitID, Status: rec.Status}, nil
	}
}

// listStats fingerprints the available listing for list ETags.
func listStats(db *gorm.DB) handlers.StatsFunc {
	return func(ctx context.Context, productID string) (handlers.ListStats, error) {
		st, err := repo.GiftStats(ctx, db, productID, time.Now().UTC())
		if err != nil {
			return handlers.ListStats{}, err
		}
		return handlers.ListStats{
			Total:        st.Total,
			Available:    st.Available,
			MaxUpdatedAt: st.MaxUpdatedAt,
			NextExpiry:   st.NextExpiry,
		}, nil
	}
}

// claimRecorder stores successful keyed claims. A duplicate means a
// concurrent retry already recorded the same outcome.
func claimRecorder(db *gorm.DB, ttl time.Duration) handlers.ClaimRecorder {
	return func(ctx context.Context, resourceID, key, giftUnitID string, status int) error {
		_, err := repo.CreateIdempotency(ctx, db, ClaimScope, resourceID, key, giftUnitID, status, ttl)
		if errors.Is(err, repo.ErrDuplicate) {
			return nil
		}
		return err
	}
}

// healthHandler reports liveness and database reachability.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := repo.Ping(ctx, db)
			cancel()
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// exemptFromRateLimit skips operational endpoints and websocket upgrades. A
// keyed claim is exempt until its key has been validated.
func exemptFromRateLimit(c *gin.Context) bool {
	switch c.FullPath() {
	case healthPath, metricsPath, wsPath:
		return true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	if strings.HasSuffix(c.FullPath(), claimRoute) && c.GetHeader(middleware.HeaderIdempotencyKey) != "" {
		_, validated := middleware.GetIdempotencyKey(c)
		return !validated
	}
	return false
}

// corsMiddleware allows every origin when none are configured, otherwise
// echoes allowed origins. Display screens are browsers on another origin.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderCustomerID, middleware.HeaderTerminalID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header, for simple health checks.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
