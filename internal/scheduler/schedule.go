package scheduler

import (
	"math/rand"
	"sort"
)

// Schedule-shape constants (spec.md §4.5): offsets concentrate in the middle
// 60% of the window, normally distributed around its midpoint, with a small
// std so sends mimic human reaction without bursting at the edges.
const (
	loFrac  = 0.2
	hiFrac  = 0.8
	stdFrac = 0.1
	minGap  = 2.0 // seconds between consecutive sends
)

// clampedNormalInWindow draws one send offset: a normal sample around the
// window midpoint, clamped into [loFrac·W, hiFrac·W].
func clampedNormalInWindow(windowSec float64) float64 {
	mean := windowSec * 0.5
	std := windowSec * stdFrac
	if std < 1.0 {
		std = 1.0
	}
	lo := windowSec * loFrac
	hi := windowSec * hiFrac

	x := rand.NormFloat64()*std + mean
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// buildSchedule draws n offsets, sorts them ascending, and pushes each one
// right so consecutive offsets differ by at least minGap, clamped to the
// window (spec.md §4.5 step 2).
func buildSchedule(n int, windowSec float64) []float64 {
	if n <= 0 {
		return nil
	}
	pts := make([]float64, n)
	for i := range pts {
		pts[i] = clampedNormalInWindow(windowSec)
	}
	sort.Float64s(pts)

	adjusted := make([]float64, 0, n)
	last := -1.0
	for i, t := range pts {
		if i > 0 && t < last+minGap {
			t = last + minGap
			if t > windowSec {
				t = windowSec
			}
		}
		adjusted = append(adjusted, t)
		last = t
	}
	return adjusted
}
