package config

import (
	"testing"
	"time"
)

func TestInAwakeWindow(t *testing.T) {
	v := Defaults() // Morning=9, Night=21, Europe/Moscow
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		hour int
		want bool
	}{
		{8, false},
		{9, true},
		{14, true},
		{21, true},
		{22, false},
		{0, false},
	}
	for _, c := range cases {
		now := time.Date(2024, 6, 1, c.hour, 30, 0, 0, loc)
		if got := v.InAwakeWindow(now); got != c.want {
			t.Errorf("hour %d: InAwakeWindow = %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestInAwakeWindowBadTimezoneFallsBackToUTC(t *testing.T) {
	v := Defaults()
	v.Timezone = "Not/AZone"
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	if !v.InAwakeWindow(now) {
		t.Fatal("expected UTC fallback to report daytime at 14:00")
	}
}
