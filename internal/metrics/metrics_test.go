package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordRequest("search", "ok", 20*time.Millisecond)
	m.RecordRequest("search", "ok", 30*time.Millisecond)
	m.RecordRequest("search", "transient", time.Second)
	m.RecordPoll("no-change")
	m.RecordPoll("change-detected")
	m.RecordPoll("no-change")
	m.RecordAnalysis("poll-detected", "ok")
	m.RecordTags("genre", 3)
	m.RecordTags("mood", 0)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.SetDegraded(true)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"search ok", testutil.ToFloat64(m.requests.WithLabelValues("search", "ok")), 2},
		{"search transient", testutil.ToFloat64(m.requests.WithLabelValues("search", "transient")), 1},
		{"no-change", testutil.ToFloat64(m.pollCycles.WithLabelValues("no-change")), 2},
		{"change-detected", testutil.ToFloat64(m.pollCycles.WithLabelValues("change-detected")), 1},
		{"analysis", testutil.ToFloat64(m.analyses.WithLabelValues("poll-detected", "ok")), 1},
		{"genre tags", testutil.ToFloat64(m.tags.WithLabelValues("genre")), 3},
		{"connections", testutil.ToFloat64(m.connections), 1},
		{"degraded", testutil.ToFloat64(m.degraded), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	m.SetDegraded(false)
	if got := testutil.ToFloat64(m.degraded); got != 0 {
		t.Errorf("degraded after clear = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordPoll("fetch-failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `music_agent_poll_cycles_total{outcome="fetch-failed"} 1`) {
		t.Errorf("metrics output missing poll counter:\n%s", body)
	}
}
