package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New("inventory-service")

	m.RecordReservation("success")
	m.RecordReservation("success")
	m.RecordReservation("insufficient")
	m.RecordReservationConflict()
	m.RecordEvent("OrderPlaced", errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("OrderPlaced", "failure")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New("order-service")
	m.RecordHTTPRequest(http.MethodPost, "/order", http.StatusCreated, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stock_http_requests_total{method="POST",path="/order",service="order-service",status="201"} 1`)
}
