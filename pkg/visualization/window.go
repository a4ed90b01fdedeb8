package visualization

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window is the intensity range mapped onto black..white
type Window struct {
	Min float64
	Max float64
}

// ComputeWindow picks the display range from the given percentiles of the
// non-zero voxels, so background does not compress the tissue contrast
func ComputeWindow(data []float64, lowerPercentile, upperPercentile float64) (Window, error) {
	if len(data) == 0 {
		return Window{}, fmt.Errorf("cannot compute window of empty data")
	}
	if lowerPercentile < 0 || upperPercentile > 100 || lowerPercentile >= upperPercentile {
		return Window{}, fmt.Errorf("invalid percentiles %g..%g", lowerPercentile, upperPercentile)
	}

	values := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 {
			values = append(values, v)
		}
	}

	w := Window{}
	if len(values) > 0 {
		sort.Float64s(values)
		w.Min = stat.Quantile(lowerPercentile/100, stat.Empirical, values, nil)
		w.Max = stat.Quantile(upperPercentile/100, stat.Empirical, values, nil)
	}
	if w.Max <= w.Min {
		w.Min, w.Max = floats.Min(data), floats.Max(data)
	}
	if w.Max <= w.Min {
		w.Max = w.Min + 1
	}
	return w, nil
}

// Normalize maps v into [0, 1]
func (w Window) Normalize(v float64) float64 {
	return clamp01((v - w.Min) / (w.Max - w.Min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
