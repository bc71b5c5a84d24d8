// Command isobusfs-cli is an interactive ISOBUS-FS client. It browses and
// downloads files from a file server on a CAN interface.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/cmdutil"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs/client"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	s, fs, err := parseFlags(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %s\n", err)
		fs.Usage()
		os.Exit(1)
	}

	// In interactive mode the terminal belongs to the command line; logs go
	// to a ring shown by dmesg.
	var (
		logOut  io.Writer = os.Stderr
		history *cmdutil.LogRing
	)
	if s.interactive {
		history = cmdutil.NewLogRing(cmdutil.DefaultLogRingSize)
		logOut = history
	}

	l := log.NewLogfmtLogger(log.NewSyncWriter(logOut))
	l = level.NewFilter(l, s.ll.FilterOption())
	l = log.With(l, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller)

	o := client.DefaultOptions
	o.Network = client.NewNetwork(s.iface, s.local, s.server)
	o.Out = os.Stdout
	if history != nil {
		o.History = history
	}
	if s.metrics != "" {
		o.Registerer = prometheus.DefaultRegisterer
	}

	c, err := client.New(l, o)
	if err != nil {
		level.Error(l).Log("msg", "failed to create client", "err", err)
		os.Exit(1)
	}

	var group run.Group

	// Information server worker
	if s.metrics != "" {
		r := cmdutil.NewInfoRouter(prometheus.DefaultGatherer, nil)
		if err := cmdutil.AddInfoServer(&group, l, s.metrics, r); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create listener for HTTP server: %s\n", err)
			os.Exit(1)
		}
	}

	// Client worker
	var commands <-chan string
	if s.interactive {
		commands = readLines(os.Stdin)
	}
	cmdutil.AddContext(&group, func(ctx context.Context) error {
		return c.Run(ctx, commands)
	})

	// Signal worker
	cmdutil.AddSignalHandler(&group, l)

	if err := group.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error running client: %s\n", err)
		os.Exit(1)
	}
}

// readLines sends the lines of r on the returned channel, closing it at the
// end of the input.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
