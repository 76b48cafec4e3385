package behavior

// mean returns the arithmetic mean of xs, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance returns the population variance of xs.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

// regularity is 1 - variance/mean², the coefficient-of-variation
// complement. It approaches 1 for perfectly uniform (machine-like)
// sequences and falls toward (or below) 0 for jittery human ones.
func regularity(xs []float64) float64 {
	m := mean(xs)
	if m == 0 {
		return 0
	}
	return 1 - variance(xs)/(m*m)
}

// clamp01 bounds v into [0,1]. All emitted confidences pass through here.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// intervals returns consecutive differences of a timestamp sequence as
// float64 milliseconds.
func intervals(ts []int64) []float64 {
	if len(ts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out = append(out, float64(ts[i]-ts[i-1]))
	}
	return out
}
