package display

import "math"

// Downsample reduces a series to at most maxPoints using
// peak-preserving bins: each bin contributes its sample of largest
// absolute value, and the final point is always kept exactly so the
// series still ends where the data ends.
func Downsample(x, y []float64, maxPoints int) ([]float64, []float64) {
	n := len(x)
	if maxPoints <= 0 || n <= maxPoints || n != len(y) {
		return x, y
	}
	if maxPoints == 1 {
		return []float64{x[n-1]}, []float64{y[n-1]}
	}

	outX := make([]float64, 0, maxPoints)
	outY := make([]float64, 0, maxPoints)

	// Bin everything before the final point into maxPoints-1 bins.
	span := n - 1
	bins := maxPoints - 1
	for b := range bins {
		start := b * span / bins
		end := (b + 1) * span / bins
		if end <= start {
			end = start + 1
		}

		peak := start
		for i := start + 1; i < end; i++ {
			if math.Abs(y[i]) > math.Abs(y[peak]) {
				peak = i
			}
		}
		outX = append(outX, x[peak])
		outY = append(outY, y[peak])
	}

	outX = append(outX, x[n-1])
	outY = append(outY, y[n-1])
	return outX, outY
}
