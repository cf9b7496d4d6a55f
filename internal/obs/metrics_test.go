package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCapturesStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invites", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/invites", "418"))
	if got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestRecordRedemptionOutcomes(t *testing.T) {
	RecordRedemption("admitted")
	RecordRedemption("invalid_code")
	RecordRedemption("invalid_code")

	if got := testutil.ToFloat64(redemptionsTotal.WithLabelValues("invalid_code")); got != 2 {
		t.Fatalf("invite_redemptions_total{outcome=invalid_code} = %v, want 2", got)
	}
}
