package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ghwatch"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg             *prom.Registry
	passDuration    prom.Histogram
	passOutcome     *prom.CounterVec
	entities        *prom.CounterVec
	fetchFailures   *prom.CounterVec
	commitFailures  prom.Counter
	deliveries      *prom.CounterVec
	pending         prom.Gauge
	lastPassSuccess prom.Gauge
}

// NewPrometheusRecorder constructs metrics and registers them on reg. A nil
// reg gets a fresh registry that also carries Go and process collectors.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
		reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	}
	pr := &PrometheusRecorder{
		reg: reg,
		passDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes",
			Buckets:   prom.DefBuckets,
		}),
		passOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pass_outcomes_total",
			Help:      "Reconciliation passes by outcome",
		}, []string{"outcome"}),
		entities: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "entities_checked_total",
			Help:      "Entities checked by kind and classification",
		}, []string{"kind", "change"}),
		fetchFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetch units by kind",
		}, []string{"kind"}),
		commitFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commit_failures_total",
			Help:      "Entity commits that failed",
		}),
		deliveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by transport and result",
		}, []string{"transport", "result"}),
		pending: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Pending notifications left after the last drain",
		}),
		lastPassSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_success_timestamp_seconds",
			Help:      "Unix time of the last pass that was not aborted",
		}),
	}
	reg.MustRegister(
		pr.passDuration, pr.passOutcome, pr.entities, pr.fetchFailures,
		pr.commitFailures, pr.deliveries, pr.pending, pr.lastPassSuccess,
	)
	return pr
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPassOutcome(outcome string) {
	p.passOutcome.WithLabelValues(outcome).Inc()
	if outcome != OutcomeAborted {
		p.lastPassSuccess.SetToCurrentTime()
	}
}

func (p *PrometheusRecorder) AddEntities(kind, change string, n int) {
	if n <= 0 {
		return
	}
	p.entities.WithLabelValues(kind, change).Add(float64(n))
}

func (p *PrometheusRecorder) IncFetchFailure(kind string) {
	p.fetchFailures.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncCommitFailure() {
	p.commitFailures.Inc()
}

func (p *PrometheusRecorder) IncDelivery(transport, result string) {
	p.deliveries.WithLabelValues(transport, result).Inc()
}

func (p *PrometheusRecorder) SetPending(n int) {
	p.pending.Set(float64(n))
}

// Handler returns an http.Handler that serves the recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *PrometheusRecorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
