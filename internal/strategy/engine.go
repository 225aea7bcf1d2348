// Package strategy turns feature frames into positions and entry candidates.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

// Strategy produces candidate long entries for a series. Entries are
// returned in ascending bar order.
type Strategy interface {
	Name() string
	Entries(series *model.Series, frame *features.Frame) ([]model.Entry, error)
}

// Weights maps a feature column to its weight in the alpha score.
type Weights map[string]float64

// Names returns the weighted columns in sorted order.
func (w Weights) Names() []string {
	names := make([]string, 0, len(w))
	for k := range w {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders weights deterministically, e.g. "rsi=0.50 vol_z=0.50".
func (w Weights) String() string {
	s := ""
	for i, name := range w.Names() {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%.2f", name, w[name])
	}
	return s
}

// FactorScore is one weighted contribution to an alpha score.
type FactorScore struct {
	Name     string
	Value    float64
	Weight   float64
	Weighted float64
}

// Evaluate computes the weighted factor sum for one feature row and the per-factor breakdown.
// A factor that is missing or NaN makes the score NaN.
func Evaluate(row map[string]float64, w Weights) (float64, []FactorScore) {
	total := 0.0
	factors := make([]FactorScore, 0, len(w))
	for _, name := range w.Names() {
		v, ok := row[name]
		if !ok {
			v = math.NaN()
		}
		fs := FactorScore{Name: name, Value: v, Weight: w[name], Weighted: v * w[name]}
		factors = append(factors, fs)
		total += fs.Weighted
	}
	return total, factors
}

// AlphaScore is the weighted factor sum of one feature row.
func AlphaScore(row map[string]float64, w Weights) float64 {
	score, _ := Evaluate(row, w)
	return score
}

// Scores computes the alpha score of every row in the frame.
func Scores(f *features.Frame, w Weights) ([]float64, error) {
	cols := make(map[string][]float64, len(w))
	for _, name := range w.Names() {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[name] = c
	}
	out := make([]float64, f.Len())
	row := make(map[string]float64, len(w))
	for i := range out {
		for name, c := range cols {
			row[name] = c[i]
		}
		out[i] = AlphaScore(row, w)
	}
	return out, nil
}

// ThresholdSignals marks rows whose score is strictly above threshold. NaN never signals.
func ThresholdSignals(scores []float64, threshold float64) []bool {
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = !math.IsNaN(s) && s > threshold
	}
	return out
}
