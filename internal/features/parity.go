package features

import (
	"fmt"
	"math"
)

// Mismatch is one cell where two feature pipelines disagree.
type Mismatch struct {
	Column string
	Index  int
	A      float64
	B      float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s[%d]: %.6f != %.6f", m.Column, m.Index, m.A, m.B)
}

// Compare checks every column present in both frames, cell by cell.
// Two NaNs are equal; a NaN against a number is a mismatch.
func Compare(a, b *Frame, tol float64) ([]Mismatch, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("frames differ in length: %d vs %d", a.Len(), b.Len())
	}
	var out []Mismatch
	for _, name := range a.order {
		colB, ok := b.columns[name]
		if !ok {
			continue
		}
		colA := a.columns[name]
		for i := range colA {
			x, y := colA[i], colB[i]
			if math.IsNaN(x) && math.IsNaN(y) {
				continue
			}
			if math.IsNaN(x) || math.IsNaN(y) || math.Abs(x-y) > tol {
				out = append(out, Mismatch{Column: name, Index: i, A: x, B: y})
			}
		}
	}
	return out, nil
}
