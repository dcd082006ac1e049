package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/athitex/fabricledger/internal/fabriccuts"
	"github.com/athitex/fabricledger/internal/movements"
	"github.com/athitex/fabricledger/internal/processing"
	"github.com/athitex/fabricledger/internal/wages"
	"github.com/athitex/fabricledger/internal/warps"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	Redis             *redis.Client
	WarpHandler       *warps.Handler
	FabricCutHandler  *fabriccuts.Handler
	MovementHandler   *movements.Handler
	ProcessingHandler *processing.Handler
	WageHandler       *wages.Handler
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", readyHandler(params.Pool, params.Redis))

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/warps", func(sr chi.Router) {
			params.WarpHandler.MountRoutes(sr)
			params.FabricCutHandler.MountWarpRoutes(sr)
		})
		api.Route("/fabric-cuts", func(sr chi.Router) {
			params.FabricCutHandler.MountRoutes(sr)
			params.ProcessingHandler.MountUsageRoute(sr)
		})
		api.Route("/movements", func(sr chi.Router) {
			params.MovementHandler.MountRoutes(sr)
		})
		api.Route("/processing-orders", func(sr chi.Router) {
			params.ProcessingHandler.MountRoutes(sr)
		})
		api.Route("/wage-invoices", func(sr chi.Router) {
			params.WageHandler.MountRoutes(sr)
		})
	})

	return r
}

// readyHandler pings postgres and redis in parallel. Either backend being
// down makes the instance not ready.
func readyHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		if pool != nil {
			g.Go(func() error { return pool.Ping(ctx) })
		}
		if rdb != nil {
			g.Go(func() error { return rdb.Ping(ctx).Err() })
		}

		w.Header().Set("Content-Type", "application/json")
		if err := g.Wait(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
