package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.SearchDone("ok")
	c.SearchDone("ok")
	c.SearchDone("exhausted")
	c.ExtractionDone("blocked")
	c.Scored("llm", true)
	c.Stored(7, 0, 3)
	c.ObserveStage("collecting", 2*time.Second)
	c.RunFinished("ok", time.Minute)

	if got := testutil.ToFloat64(c.searches.WithLabelValues("ok")); got != 2 {
		t.Errorf("searches{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.extractions.WithLabelValues("blocked")); got != 1 {
		t.Errorf("extractions{blocked} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.scorings.WithLabelValues("llm", "true")); got != 1 {
		t.Errorf("scorings{llm,true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.storage.WithLabelValues("duplicate")); got != 3 {
		t.Errorf("storage{duplicate} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("ok")); got != 1 {
		t.Errorf("runs{ok} = %v, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SearchDone("fatal")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `risk_radar_search_requests_total{outcome="fatal"} 1`) {
		t.Errorf("metrics output missing search counter:\n%s", body)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.SearchDone("ok")
	c.ExtractionDone("ok")
	c.Scored("lexicon", false)
	c.Stored(1, 1, 1)
	c.ObserveStage("scoring", time.Second)
	c.RunFinished("ok", time.Second)
	if c.Registry() != nil {
		t.Error("nil collector returned a registry")
	}
}

func TestCollectors_AreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SearchDone("ok")
	if got := testutil.ToFloat64(b.searches.WithLabelValues("ok")); got != 0 {
		t.Errorf("second collector saw %v searches, want 0", got)
	}
}
