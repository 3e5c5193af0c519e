package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpload(t *testing.T) {
	reg := prometheus.NewRegistry()
	uploads := NewUploads(reg)

	uploads.ObserveUpload("core", "success", 100*time.Millisecond)
	uploads.ObserveUpload("core", "success", 200*time.Millisecond)
	uploads.ObserveUpload("core", "transport", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(uploads.attempts.WithLabelValues("core", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(uploads.attempts.WithLabelValues("core", "transport")))
	assert.Equal(t, 1, testutil.CollectAndCount(uploads.duration))
}

func TestObserveBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	uploads := NewUploads(reg)

	uploads.ObserveBatch("core", BatchSkipped)

	assert.Equal(t, 1.0, testutil.ToFloat64(uploads.batches.WithLabelValues("core", BatchSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(uploads.batches.WithLabelValues("core", BatchStarted)))
}

func TestNilUploadsIsNoop(t *testing.T) {
	var uploads *Uploads

	assert.NotPanics(t, func() {
		uploads.ObserveUpload("core", "success", time.Second)
		uploads.ObserveBatch("core", BatchStarted)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	uploads := NewUploads(reg)
	uploads.ObserveBatch("core", BatchStarted)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `telemon_upload_batches_total{ping_type="core",result="started"} 1`)
}
