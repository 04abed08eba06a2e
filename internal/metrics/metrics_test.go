package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/reconcile"
)

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIdentify(reconcile.OutcomeCreated, 5*time.Millisecond)
	m.ObserveIdentify(reconcile.OutcomeMerged, 5*time.Millisecond)
	m.ObserveIdentify(reconcile.OutcomeMerged, 5*time.Millisecond)
	m.ObserveMerge(2, 3)
	m.ObserveError("identify", contact.ErrCodeInvalidRequest)
	m.ObserveError("delete", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.identifyTotal.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.identifyTotal.WithLabelValues("merged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.demotions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.relinked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("identify", "INVALID_REQUEST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("delete", "UNKNOWN")))
}

func TestMetrics_HTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveHTTP("POST /identify", 200, time.Millisecond)
	m.ObserveHTTP("POST /identify", 400, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST /identify", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST /identify", "400")))
}

func TestHandler_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveIdentify(reconcile.OutcomeLinked, time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `idrecon_identify_total{outcome="linked"} 1`)
	assert.Contains(t, string(body), "idrecon_identify_duration_seconds_bucket")
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
