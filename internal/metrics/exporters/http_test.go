package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.Observe(events.Envelope{Source: "photo/x", Payload: camera.CaptureEnded{CaptureID: 1, Frames: 1}})

	handler := HTTPHandler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "camcore_photo_captures_total 1") {
		t.Error("expected camera metrics in response")
	}
}
