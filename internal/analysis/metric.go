// Package analysis selects S-box metrics, runs them against a normalised
// table and assembles the results into a Report.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ErrUnknownMetric is returned when a metric name cannot be resolved.
var ErrUnknownMetric = errors.New("analysis: unknown metric")

// Metric identifies one cryptographic criterion by its stable name.
type Metric string

const (
	MetricLAP                    Metric = "lap"
	MetricNonlinearity           Metric = "nonlinearity"
	MetricSAC                    Metric = "sac"
	MetricDAP                    Metric = "dap"
	MetricDifferentialUniformity Metric = "differential_uniformity"
	MetricBICSAC                 Metric = "bic_sac"
	MetricBICNL                  Metric = "bic_nl"
)

// AllMetrics lists every metric in report order.
var AllMetrics = []Metric{
	MetricLAP,
	MetricNonlinearity,
	MetricSAC,
	MetricDAP,
	MetricDifferentialUniformity,
	MetricBICSAC,
	MetricBICNL,
}

// DefaultMetrics is the selection used when a request names none.
var DefaultMetrics = []Metric{MetricLAP}

var displayNames = map[Metric]string{
	MetricLAP:                    "Linear Approximation Probability (LAP)",
	MetricNonlinearity:           "Nonlinearity",
	MetricSAC:                    "Strict Avalanche Criterion (SAC)",
	MetricDAP:                    "Differential Approximation Probability (DAP)",
	MetricDifferentialUniformity: "Differential Uniformity",
	MetricBICSAC:                 "Bit Independence Criterion - SAC (BIC-SAC)",
	MetricBICNL:                  "Bit Independence Criterion - Nonlinearity (BIC-NL)",
}

var aliases = map[string]Metric{
	"nl": MetricNonlinearity,
	"du": MetricDifferentialUniformity,
}

// DisplayName returns the human-readable metric title.
func (m Metric) DisplayName() string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return string(m)
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	_, ok := displayNames[m]
	return ok
}

func (m Metric) String() string {
	return string(m)
}

// ParseMetric resolves a single name. Stable names, display names and the
// short aliases "nl" and "du" are accepted case-insensitively; hyphens and
// spaces are treated as underscores.
func ParseMetric(name string) (Metric, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for m, display := range displayNames {
		if trimmed == strings.ToLower(display) {
			return m, nil
		}
	}

	key := strings.NewReplacer("-", "_", " ", "_").Replace(trimmed)
	if m := Metric(key); m.Valid() {
		return m, nil
	}
	if m, ok := aliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// ParseMetrics resolves a list of names, each of which may itself be a
// comma-separated list. "all" selects every metric. Duplicates collapse and
// the result follows AllMetrics order. An empty input yields nil.
func ParseMetrics(names []string) ([]Metric, error) {
	tokens := lo.FlatMap(names, func(name string, _ int) []string {
		return strings.Split(name, ",")
	})
	tokens = lo.Filter(tokens, func(token string, _ int) bool {
		return strings.TrimSpace(token) != ""
	})
	if len(tokens) == 0 {
		return nil, nil
	}

	selected := make([]Metric, 0, len(tokens))
	for _, token := range tokens {
		if strings.EqualFold(strings.TrimSpace(token), "all") {
			return append([]Metric(nil), AllMetrics...), nil
		}
		m, err := ParseMetric(token)
		if err != nil {
			return nil, err
		}
		selected = append(selected, m)
	}
	return ordered(selected), nil
}

// ordered deduplicates ms and sorts it into AllMetrics order.
func ordered(ms []Metric) []Metric {
	return lo.Filter(AllMetrics, func(m Metric, _ int) bool {
		return lo.Contains(ms, m)
	})
}

// Names returns the stable names of ms.
func Names(ms []Metric) []string {
	return lo.Map(ms, func(m Metric, _ int) string { return string(m) })
}
