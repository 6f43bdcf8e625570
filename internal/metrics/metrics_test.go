package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Shared(t *testing.T) {
	if NewMetrics() != NewMetrics() {
		t.Fatal("NewMetrics should return the same instance")
	}
}

func TestRecordToolCall(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("update_mastery", "error"))

	m.RecordToolCall("update_mastery", false)

	after := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("update_mastery", "error"))
	if after != before+1 {
		t.Errorf("tool error count = %v, want %v", after, before+1)
	}
}

func TestRecordTurn(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("kata", "final"))

	m.RecordTurn("kata", "final", 2, 1.5)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("kata", "final")); got != before+1 {
		t.Errorf("turn count = %v, want %v", got, before+1)
	}
}
