package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SupportDesk-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports 503 when any
// of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SupportDesk-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(deps))
		)
		g, gctx := errgroup.WithContext(ctx)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			g.Go(func() error {
				err := dep.Ping(gctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					checks[name] = "down"
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
				}
				checks[name] = "up"
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			errCtx := r.Context()
			if logg != nil {
				errCtx = logg.WithField(errCtx, "checks", checks)
			}
			responses.WriteError(errCtx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
