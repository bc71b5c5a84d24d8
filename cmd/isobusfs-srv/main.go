// Command isobusfs-srv runs an ISOBUS-FS file server on a CAN interface,
// exporting host directories as volumes to J1939 clients.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/cmdutil"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs/server"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	f := newFlags(os.Args[0])
	cfg, err := f.load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %s\n", err)
		os.Exit(1)
	}
	s, err := cfg.validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		f.fs.Usage()
		os.Exit(1)
	}

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = level.NewFilter(l, s.ll.FilterOption())
	l = log.With(l, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller)

	o := s.server
	o.Network = server.NewNetwork(s.iface, s.name, s.addr)
	o.Registerer = prometheus.DefaultRegisterer
	o.Middleware = []server.Middleware{server.NewLoggingMiddleware(l)}

	srv, err := server.New(l, o)
	if err != nil {
		level.Error(l).Log("msg", "failed to create file server", "err", err)
		os.Exit(1)
	}

	var group run.Group

	// Information server worker
	if s.metrics != "" {
		r := cmdutil.NewInfoRouter(prometheus.DefaultGatherer, map[string]http.Handler{
			"/debug/isobusfs/state": srv.StateHandler(),
		})
		if err := cmdutil.AddInfoServer(&group, l, s.metrics, r); err != nil {
			level.Error(l).Log("msg", "failed to create listener for HTTP server", "err", err)
			os.Exit(1)
		}
	}

	// File server worker
	cmdutil.AddContext(&group, srv.Serve)

	// Signal worker
	cmdutil.AddSignalHandler(&group, l)

	level.Info(l).Log("msg", "starting file server", "interface", s.iface, "version", o.Version, "volumes", len(o.Volumes))
	if err := group.Run(); err != nil {
		level.Error(l).Log("msg", "error running file server", "err", err)
		os.Exit(1)
	}
}
