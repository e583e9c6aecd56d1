// Command server runs the gift-chain backend: the REST surface used by tills,
// the post-payment hook called by checkout and the websocket feed consumed by
// café display screens.
//
// @title                      Gift Chain API
// @version                    1.0
// @description                Pay-it-forward gift units, claims, chain history and live display updates.
// @BasePath                   /api/v1
// @schemes                    http https
// @securityDefinitions.apikey CustomerID
// @in                         header
// @name                       X-Customer-ID
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftchain-backend/docs"
	"github.com/tbourn/go-giftchain-backend/internal/config"
	httpapi "github.com/tbourn/go-giftchain-backend/internal/http"
	"github.com/tbourn/go-giftchain-backend/internal/observability"
	"github.com/tbourn/go-giftchain-backend/internal/realtime"
	"github.com/tbourn/go-giftchain-backend/internal/repo"
	"github.com/tbourn/go-giftchain-backend/internal/services"
	"github.com/tbourn/go-giftchain-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName, ver)
	zlog.Logger = log
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, ver, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, ver string, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.DBOptions{
		BusyTimeout:  cfg.DBBusyTimeout,
		MaxOpenConns: cfg.DBMaxOpenConns,
		SlowQuery:    cfg.DBSlowQuery,
		Log:          log,
	})
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	hub := realtime.NewHub(realtime.Options{
		RecentLimit:    cfg.Hub.RecentLimit,
		MaxChains:      cfg.Hub.MaxChains,
		SendBuffer:     cfg.Hub.SendBuffer,
		WriteWait:      cfg.Hub.WriteWait,
		PongWait:       cfg.Hub.PongWait,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, log.With().Str("component", "hub").Logger())

	gifts := services.NewGiftService(db, hub, log.With().Str("component", "gifts").Logger())
	gifts.DefaultTTL = cfg.Gift.DefaultTTL
	gifts.MaxChainDepth = cfg.Gift.ChainMaxDepth

	// Displays connecting after a restart see recent activity at once.
	recent, err := gifts.RecentActivity(ctx, cfg.Hub.RecentLimit*cfg.Hub.MaxChains)
	if err != nil {
		log.Warn().Err(err).Msg("seed display hub")
	} else {
		hub.Seed(recent)
	}

	go purgeIdempotency(ctx, db, cfg.IdempotencyTTL, log)

	payments := services.NewPostPaymentHandler(gifts, nil, log.With().Str("component", "post_payment").Logger())

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.Version = ver
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Gifts: gifts, Payments: payments, Hub: hub}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBPath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// Hijacked websocket connections are not tracked by srv.Shutdown.
	hub.Close()
	payments.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("stopped")
	return nil
}

// purgeIdempotency drops expired claim keys until ctx ends. Expired rows are
// already ignored by lookups; this only bounds table growth.
func purgeIdempotency(ctx context.Context, db *gorm.DB, ttl time.Duration, log zerolog.Logger) {
	every := ttl / 4
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency keys")
			}
		}
	}
}
