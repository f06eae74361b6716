package bots

import "math"

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
