package prometheus

import (
	"context"
	"net/http"

	"github.com/marmos91/corerpc/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve starts a /metrics HTTP endpoint for reg, bound to addr, and returns a
// shutdown function. It returns immediately; the server runs in its own
// goroutine until the shutdown func is called or ctx is done.
func Serve(ctx context.Context, reg *prometheus.Registry, addr string) (shutdown func(context.Context) error, err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	return srv.Shutdown, nil
}
