package scheduler

import "testing"

func TestClampedNormalStaysInWindow(t *testing.T) {
	const window = 300.0
	lo, hi := window*loFrac, window*hiFrac
	for i := 0; i < 1000; i++ {
		x := clampedNormalInWindow(window)
		if x < lo || x > hi {
			t.Fatalf("offset %v outside [%v, %v]", x, lo, hi)
		}
	}
}

func TestBuildScheduleGapsAndOrder(t *testing.T) {
	const window = 300.0
	for _, n := range []int{1, 3, 10, 50} {
		offsets := buildSchedule(n, window)
		if len(offsets) != n {
			t.Fatalf("n=%d: got %d offsets", n, len(offsets))
		}
		for i := 1; i < len(offsets); i++ {
			if offsets[i] < offsets[i-1] {
				t.Fatalf("n=%d: offsets not ascending at %d: %v", n, i, offsets)
			}
			// Gaps hold except where the adjustment ran into the window end.
			if offsets[i] < offsets[i-1]+minGap && offsets[i] < window {
				t.Fatalf("n=%d: gap %v < %v at %d", n, offsets[i]-offsets[i-1], minGap, i)
			}
		}
		for _, x := range offsets {
			if x < window*loFrac || x > window {
				t.Fatalf("n=%d: offset %v out of range", n, x)
			}
		}
	}
}

func TestBuildScheduleEmpty(t *testing.T) {
	if got := buildSchedule(0, 300); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}

// With a tiny window and many sends, the min-gap adjustment must clamp at
// the window end instead of scheduling past it.
func TestBuildScheduleClampsToWindow(t *testing.T) {
	const window = 10.0
	offsets := buildSchedule(20, window)
	for _, x := range offsets {
		if x > window {
			t.Fatalf("offset %v beyond window %v", x, window)
		}
	}
}
