package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(Operations.WithLabelValues("manual_reconcile", "OK"))
	ObserveOperation("manual_reconcile", "")
	after := testutil.ToFloat64(Operations.WithLabelValues("manual_reconcile", "OK"))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Matches.WithLabelValues("EXACT_REF").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "posrecon_matches_committed_total") {
		t.Error("expected matches counter in exposition output")
	}
}
