package server

import (
	"context"
	"strconv"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	nacks         prometheus.Counter
	clients       prometheus.Gauge
	handles       prometheus.Gauge
	statusSent    prometheus.Counter
	statusLate    prometheus.Counter
	statusUnacked prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests handled by the file server, by command and protocol error code.",
		}, []string{"command", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a request.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"command"}),
		nacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "nacks_sent_total",
			Help:      "Frames rejected with a negative acknowledgement.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "clients",
			Help:      "Clients currently connected.",
		}),
		handles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "open_handles",
			Help:      "Handles currently open.",
		}),
		statusSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "status_messages_total",
			Help:      "File Server Status messages broadcast.",
		}),
		statusLate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "status_messages_late_total",
			Help:      "File Server Status messages sent later than the allowed jitter.",
		}),
		statusUnacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "server",
			Name:      "status_messages_unacked_total",
			Help:      "File Server Status messages sent before the previous one was acknowledged by the stack.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.duration,
			m.nacks,
			m.clients,
			m.handles,
			m.statusSent,
			m.statusLate,
			m.statusUnacked,
		)
	}
	return m
}

// middleware counts requests and their outcome.
func (m *metrics) middleware() Middleware {
	return FuncMiddleware(func(ctx context.Context, hdr *RequestHeader, req isobusfs.Request, i Invoker) (isobusfs.Response, error) {
		start := time.Now()
		resp, err := i(ctx, hdr, req)

		code := responseError(resp)
		if err != nil {
			code = isobusfs.ErrorFor(err)
		}
		cmd := hdr.Command.String()
		m.requests.WithLabelValues(cmd, strconv.Itoa(int(code))).Inc()
		m.duration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
		return resp, err
	})
}
