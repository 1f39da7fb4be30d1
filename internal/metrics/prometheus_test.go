package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObservePassDuration(1500 * time.Millisecond)
	pr.IncPassOutcome(OutcomeOK)
	pr.AddEntities("issue", "created", 2)
	pr.AddEntities("issue", "unchanged", 0)
	pr.IncFetchFailure("pull_request")
	pr.IncCommitFailure()
	pr.IncDelivery("telegram", DeliverySent)
	pr.IncDelivery("telegram", DeliverySent)
	pr.SetPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.entities.WithLabelValues("issue", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pr.deliveries.WithLabelValues("telegram", DeliverySent)))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.commitFailures))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestHandlerServesMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())
	pr.IncPassOutcome(OutcomeAborted)

	rec := httptest.NewRecorder()
	pr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ghwatch_pass_outcomes_total{outcome="aborted"} 1`))
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncPassOutcome(OutcomeOK)
	r.SetPending(1)
}
