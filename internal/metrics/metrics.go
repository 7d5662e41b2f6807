package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "active_sessions",
		Help:      "Number of currently registered torrent sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all sessions.",
	})

	SessionCreatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "session_creates_total",
		Help:      "Total session create requests by outcome (created, existing, error).",
	}, []string{"outcome"})

	StreamsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "streams_opened_total",
		Help:      "Total number of successfully opened file streams.",
	})

	StreamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "stream_bytes_total",
		Help:      "Total bytes written to streaming clients.",
	})

	StreamInterruptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "stream_interruptions_total",
		Help:      "Total number of streams interrupted before the range completed.",
	})

	MetadataTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "metadata_timeouts_total",
		Help:      "Total number of sessions torn down because metadata never arrived.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		DownloadSpeedBytes,
		PeersConnected,
		SessionCreatesTotal,
		StreamsOpenedTotal,
		StreamBytesTotal,
		StreamInterruptionsTotal,
		MetadataTimeoutsTotal,
	)
}
