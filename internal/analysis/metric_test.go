package analysis

import (
	"errors"
	"slices"
	"testing"
)

func TestParseMetrics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   []string
		want []Metric
	}{
		{name: "empty", in: nil, want: nil},
		{name: "blank entries", in: []string{"", " , "}, want: nil},
		{name: "single", in: []string{"lap"}, want: []Metric{MetricLAP}},
		{name: "case and spacing", in: []string{"  SAC ", "Bic-Nl"}, want: []Metric{MetricSAC, MetricBICNL}},
		{name: "comma list reordered", in: []string{"bic_sac,lap,dap"}, want: []Metric{MetricLAP, MetricDAP, MetricBICSAC}},
		{name: "duplicates", in: []string{"nl", "nonlinearity", "NONLINEARITY"}, want: []Metric{MetricNonlinearity}},
		{name: "alias du", in: []string{"du"}, want: []Metric{MetricDifferentialUniformity}},
		{name: "display name", in: []string{"Strict Avalanche Criterion (SAC)"}, want: []Metric{MetricSAC}},
		{name: "all", in: []string{"lap", "ALL"}, want: AllMetrics},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMetrics(tc.in)
			if err != nil {
				t.Fatalf("ParseMetrics returned error: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("ParseMetrics(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseMetricsUnknownName(t *testing.T) {
	t.Parallel()

	_, err := ParseMetrics([]string{"lap", "entropy"})
	if !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestParseMetricsAllReturnsCopy(t *testing.T) {
	t.Parallel()

	got, err := ParseMetrics([]string{"all"})
	if err != nil {
		t.Fatalf("ParseMetrics returned error: %v", err)
	}
	got[0] = "mutated"
	if AllMetrics[0] != MetricLAP {
		t.Fatalf("expected AllMetrics to be unaffected")
	}
}

func TestMetricDisplayNames(t *testing.T) {
	t.Parallel()

	for _, m := range AllMetrics {
		if !m.Valid() {
			t.Fatalf("expected %s to be valid", m)
		}
		if m.DisplayName() == string(m) {
			t.Fatalf("expected a display name for %s", m)
		}
		parsed, err := ParseMetric(m.DisplayName())
		if err != nil || parsed != m {
			t.Fatalf("display name %q did not round trip: %v %v", m.DisplayName(), parsed, err)
		}
	}
	if Metric("bogus").Valid() {
		t.Fatalf("expected unknown metric to be invalid")
	}
	if got := Metric("bogus").DisplayName(); got != "bogus" {
		t.Fatalf("DisplayName fallback = %q", got)
	}
	if got := Names([]Metric{MetricLAP, MetricBICNL}); !slices.Equal(got, []string{"lap", "bic_nl"}) {
		t.Fatalf("Names = %v", got)
	}
}
