package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "livemap_"

var (
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "events_received_total",
		Help: "Events handled by the reconciliation engine, by kind",
	}, []string{"kind"})

	EventsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "events_malformed_total",
		Help: "Events whose body could not be decoded",
	})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "events_dropped_total",
		Help: "Events that carried nothing the engine could apply",
	}, []string{"reason"})

	AlertsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "alerts_recorded_total",
		Help: "Alerts appended to the ledger, by severity",
	}, []string{"severity"})

	TrackEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "track_evictions_total",
		Help: "Track points evicted by the per-driver cap",
	})

	AlertEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "alert_evictions_total",
		Help: "Alerts evicted from the ledger ring buffer",
	})

	ChannelDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "channel_drops_total",
		Help: "Notifications dropped because a worker channel was full",
	}, []string{"channel"})

	SinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "sink_failures_total",
		Help: "Failed writes to downstream sinks",
	}, []string{"sink"})

	AlertsForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "alerts_forwarded_total",
		Help: "Alerts published to brokers, by result",
	}, []string{"result"})

	Resyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "resyncs_total",
		Help: "Resynchronizations triggered by the connection controller",
	})

	ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: prefix + "connection_state",
		Help: "1 for the current transport connection state, 0 otherwise",
	}, []string{"state"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		EventsReceived,
		EventsMalformed,
		EventsDropped,
		AlertsRecorded,
		TrackEvictions,
		AlertEvictions,
		ChannelDrops,
		SinkFailures,
		AlertsForwarded,
		Resyncs,
		ConnectionState,
		HTTPRequestDuration,
	)
}

// SetConnectionState flips the state gauge so exactly one label reads 1.
func SetConnectionState(current string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
