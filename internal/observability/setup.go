// Package observability owns the process metrics and the tracer provider.
// Counters are registered once at init; the metrics endpoint runs as a
// lifecycle component.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidward_events_total",
			Help: "Normalized gateway events ingested, by kind",
		},
		[]string{"kind"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidward_verdicts_total",
			Help: "Classifier verdicts produced, by level",
		},
		[]string{"level"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidward_actions_total",
			Help: "Terminal dispatch tickets, by action kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	eventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raidward_event_processing_seconds",
			Help:    "Time from event pickup to decision applied",
			Buckets: prometheus.DefBuckets,
		},
	)

	guildsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raidward_guilds_tracked",
			Help: "Guild entries currently held in the state store",
		},
	)
)

func init() {
	prometheus.MustRegister(
		eventsTotal,
		verdictsTotal,
		actionsTotal,
		eventProcessingDuration,
		guildsTracked,
	)
	otel.SetTracerProvider(trace.NewTracerProvider())
}

func RecordEvent(kind string)           { eventsTotal.WithLabelValues(kind).Inc() }
func RecordVerdict(level string)        { verdictsTotal.WithLabelValues(level).Inc() }
func RecordAction(kind, outcome string) { actionsTotal.WithLabelValues(kind, outcome).Inc() }
func ObserveProcessing(d time.Duration) { eventProcessingDuration.Observe(d.Seconds()) }
func SetGuildsTracked(n int)            { guildsTracked.Set(float64(n)) }

// Server exposes the Prometheus endpoint as a lifecycle component.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("context", "observability").
				WithError(err).
				Error("metrics server failed")
		}
	}()
	log.WithField("context", "observability").WithField("addr", s.addr).Info("metrics endpoint up")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
