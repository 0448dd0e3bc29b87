package ranking

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	if got := len(m.Collectors()); got != 6 {
		t.Errorf("expected 6 collectors, got %d", got)
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Fatalf("Register() returned error: %v", err)
		}

		// Vector families only appear once a label value exists
		m.IncFactorSelected(FactorDailyDecay)
		m.IncOverrideRejected(FactorSpaminess)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricRankingRequests:         false,
			MetricRankingCandidates:       false,
			MetricRankingDuration:         false,
			MetricRankingFactorSelected:   false,
			MetricRankingUnknownFactor:    false,
			MetricRankingOverrideRejected: false,
		}
		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}
		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		if err := NewMetrics().Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}
		if err := NewMetrics().Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncRequests()
	m.IncRequests()
	m.AddUnknownFactors(3)
	m.AddUnknownFactors(0)
	m.IncFactorSelected(FactorReactions)
	m.IncFactorSelected(FactorReactions)
	m.IncOverrideRejected(FactorExperience)

	if got := getCounterValue(m.requests); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := getCounterValue(m.unknownFactor); got != 3 {
		t.Errorf("expected 3 unknown factors, got %v", got)
	}
	if got := getCounterValue(m.factorSelected.WithLabelValues(FactorReactions)); got != 2 {
		t.Errorf("expected reactions selected twice, got %v", got)
	}
	if got := getCounterValue(m.overrideRejected.WithLabelValues(FactorExperience)); got != 1 {
		t.Errorf("expected 1 rejected override, got %v", got)
	}
}

func TestMetrics_Histograms(t *testing.T) {
	m := NewMetrics()

	m.ObserveCandidates(100)
	m.ObserveCandidates(5000)
	m.ObserveDuration(0.002)

	if got := getHistogramCount(m.candidates); got != 2 {
		t.Errorf("expected 2 candidate observations, got %d", got)
	}
	if got := getHistogramSum(m.candidates); got != 5100 {
		t.Errorf("expected candidate sum 5100, got %v", got)
	}
	if got := getHistogramCount(m.duration); got != 1 {
		t.Errorf("expected 1 duration observation, got %d", got)
	}
}

func getCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func getHistogramCount(h prometheus.Histogram) uint64 {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

func getHistogramSum(h prometheus.Histogram) float64 {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return -1
	}
	return m.GetHistogram().GetSampleSum()
}
