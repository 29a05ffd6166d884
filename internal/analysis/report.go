package analysis

import (
	"time"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/validation"
)

// Results holds the value of every selected metric. Unselected metrics are
// nil so they are omitted when encoded.
type Results struct {
	LAP                    *float64    `json:"lap,omitempty" yaml:"lap,omitempty"`
	Nonlinearity           *int        `json:"nonlinearity,omitempty" yaml:"nonlinearity,omitempty"`
	SAC                    *float64    `json:"sac,omitempty" yaml:"sac,omitempty"`
	SACMatrix              [][]float64 `json:"sac_matrix,omitempty" yaml:"sac_matrix,omitempty"`
	DAP                    *float64    `json:"dap,omitempty" yaml:"dap,omitempty"`
	DifferentialUniformity *int        `json:"differential_uniformity,omitempty" yaml:"differential_uniformity,omitempty"`
	BICSAC                 *float64    `json:"bic_sac,omitempty" yaml:"bic_sac,omitempty"`
	BICNL                  *int        `json:"bic_nl,omitempty" yaml:"bic_nl,omitempty"`
}

// Report is the outcome of one analysis.
type Report struct {
	ID          string             `json:"id" yaml:"id"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	DurationMS  float64            `json:"duration_ms" yaml:"duration_ms"`
	Metrics     []Metric           `json:"metrics" yaml:"metrics"`
	InputLength int                `json:"input_length" yaml:"input_length"`
	Warnings    []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Table       []int              `json:"table" yaml:"table"`
	Results     Results            `json:"results" yaml:"results"`
	Validation  validation.Summary `json:"validation" yaml:"validation"`
}

// MetricResult is a single finished metric, delivered to progress callbacks
// as soon as it is available.
type MetricResult struct {
	Metric     Metric      `json:"metric" yaml:"metric"`
	Value      any         `json:"value" yaml:"value"`
	Matrix     [][]float64 `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	DurationMS float64     `json:"duration_ms" yaml:"duration_ms"`
}

func (r MetricResult) apply(results *Results) {
	switch r.Metric {
	case MetricLAP:
		v := r.Value.(float64)
		results.LAP = &v
	case MetricNonlinearity:
		v := r.Value.(int)
		results.Nonlinearity = &v
	case MetricSAC:
		v := r.Value.(float64)
		results.SAC = &v
		results.SACMatrix = r.Matrix
	case MetricDAP:
		v := r.Value.(float64)
		results.DAP = &v
	case MetricDifferentialUniformity:
		v := r.Value.(int)
		results.DifferentialUniformity = &v
	case MetricBICSAC:
		v := r.Value.(float64)
		results.BICSAC = &v
	case MetricBICNL:
		v := r.Value.(int)
		results.BICNL = &v
	}
}

// Values returns the computed scalars keyed by metric, in the shape used by
// exporters.
func (r Results) Values() map[Metric]any {
	out := make(map[Metric]any)
	if r.LAP != nil {
		out[MetricLAP] = *r.LAP
	}
	if r.Nonlinearity != nil {
		out[MetricNonlinearity] = *r.Nonlinearity
	}
	if r.SAC != nil {
		out[MetricSAC] = *r.SAC
	}
	if r.DAP != nil {
		out[MetricDAP] = *r.DAP
	}
	if r.DifferentialUniformity != nil {
		out[MetricDifferentialUniformity] = *r.DifferentialUniformity
	}
	if r.BICSAC != nil {
		out[MetricBICSAC] = *r.BICSAC
	}
	if r.BICNL != nil {
		out[MetricBICNL] = *r.BICNL
	}
	return out
}

// TableGrid returns the report table as 16 rows of 16 entries.
func (r Report) TableGrid() [][]int {
	const side = 16
	grid := make([][]int, 0, side)
	for row := 0; row*side < len(r.Table) && row < side; row++ {
		end := min((row+1)*side, len(r.Table))
		grid = append(grid, r.Table[row*side:end])
	}
	return grid
}

// SBox rebuilds the analysed table.
func (r Report) SBox() (sbox.Table, error) {
	return sbox.NewTable(r.Table)
}
