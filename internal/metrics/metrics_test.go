package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Relays.WithLabelValues("0xabc", "settled").Inc()
	m.Relays.WithLabelValues("0xabc", "settled").Inc()
	m.GasUsed.WithLabelValues("0xabc").Observe(21_000)

	if got := testutil.ToFloat64(m.Relays.WithLabelValues("0xabc", "settled")); got != 2 {
		t.Errorf("relays_total: got %v want 2", got)
	}
	n, err := testutil.GatherAndCount(reg, "gastank_forwarded_gas_used")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("histogram series: got %d want 1", n)
	}
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering the same collectors twice")
		}
	}()
	New(reg)
}
