package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the sync metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles      *prometheus.CounterVec
	cycleDur    *prometheus.SummaryVec
	records     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	objects     *prometheus.CounterVec
	probes      *prometheus.CounterVec
}

// New creates a Recorder with its own registry
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "disaster",
		Subsystem: "sync",
		Name:      "cycles_total",
		Help:      "Poll cycles by consumer and result",
	}, []string{"consumer", "result"})
	r.cycleDur = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "disaster",
		Subsystem: "sync",
		Name:      "cycle_duration_seconds",
		Help:      "Time spent in one poll cycle",
	}, []string{"consumer"})
	r.records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "disaster",
		Subsystem: "sync",
		Name:      "records",
		Help:      "Records held after the last successful cycle",
	}, []string{"consumer"})
	r.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "disaster",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful cycle",
	}, []string{"consumer"})
	r.objects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "disaster",
		Name:      "objects_fetched_total",
		Help:      "Objects fetched from the bucket by result",
	}, []string{"result"})
	r.probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "disaster",
		Name:      "connection_probes_total",
		Help:      "Connection probes by outcome",
	}, []string{"outcome"})

	r.registry.MustRegister(r.cycles, r.cycleDur, r.records, r.lastSuccess, r.objects, r.probes)
	return r
}

// ObjectFetched counts one object fetch; result is ok, error or parse_error
func (r *Recorder) ObjectFetched(result string) {
	if r == nil {
		return
	}
	r.objects.WithLabelValues(result).Inc()
}

// CycleFinished records one poll cycle
func (r *Recorder) CycleFinished(consumer string, d time.Duration, records int, err error) {
	if r == nil {
		return
	}
	r.cycleDur.WithLabelValues(consumer).Observe(d.Seconds())
	if err != nil {
		r.cycles.WithLabelValues(consumer, "error").Inc()
		return
	}
	r.cycles.WithLabelValues(consumer, "success").Inc()
	r.records.WithLabelValues(consumer).Set(float64(records))
	r.lastSuccess.WithLabelValues(consumer).Set(float64(time.Now().Unix()))
}

// ProbeFinished counts one connection probe
func (r *Recorder) ProbeFinished(outcome string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(outcome).Inc()
}

// Handler serves /metrics and /healthz
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Server wraps the metrics handler in an http.Server
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string, r *Recorder) *Server {
	return &Server{server: &http.Server{
		Addr:         addr,
		Handler:      r.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

func (s *Server) Serve() error                       { return s.server.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
