package cmdutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof" // anonymous import to get the pprof handler registered

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewInfoRouter returns the routes of the information server: metrics from
// g, pprof, and any extra handlers keyed by path.
func NewInfoRouter(g prometheus.Gatherer, extra map[string]http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.PathPrefix("/debug/pprof").Handler(http.DefaultServeMux)
	for path, h := range extra {
		r.Handle(path, h)
	}
	return r
}

// AddInfoServer adds an HTTP server for handler listening on addr to the
// group.
func AddInfoServer(group *run.Group, l log.Logger, addr string, handler http.Handler) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	level.Info(l).Log("msg", "serving information endpoints", "addr", lis.Addr())

	srv := http.Server{Handler: handler}
	group.Add(func() error {
		err := srv.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, func(_ error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
	})
	return nil
}

// AddSignalHandler adds an actor to the group that returns on SIGINT or
// SIGTERM.
func AddSignalHandler(group *run.Group, l log.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	group.Add(func() error {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)

		select {
		case <-ch:
			level.Info(l).Log("msg", "received shutdown signal")
		case <-ctx.Done():
		}
		return nil
	}, func(_ error) {
		cancel()
	})
}

// AddContext adds an actor running fn with a context that is canceled when
// the group shuts down.
func AddContext(group *run.Group, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return fn(ctx)
	}, func(_ error) {
		cancel()
	})
}
