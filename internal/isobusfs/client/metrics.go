package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests     *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	nacks        prometheus.Counter
	serverActive prometheus.Gauge
	maintenance  prometheus.Counter
	maintLate    prometheus.Counter
	maintUnacked prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests sent to the file server, by command.",
		}, []string{"command"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "event_timeouts_total",
			Help:      "Responses that did not arrive in time, by command.",
		}, []string{"command"}),
		nacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "nacks_received_total",
			Help:      "Negative acknowledgements received from the file server.",
		}),
		serverActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "server_active",
			Help:      "1 while File Server Status messages are received.",
		}),
		maintenance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "maintenance_messages_total",
			Help:      "Client connection maintenance messages sent.",
		}),
		maintLate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "maintenance_messages_late_total",
			Help:      "Maintenance messages sent later than the allowed jitter.",
		}),
		maintUnacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isobusfs",
			Subsystem: "client",
			Name:      "maintenance_messages_unacked_total",
			Help:      "Maintenance messages sent before the previous one was acknowledged by the stack.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.timeouts,
			m.nacks,
			m.serverActive,
			m.maintenance,
			m.maintLate,
			m.maintUnacked,
		)
	}
	return m
}
