package config

import "time"

// InAwakeWindow reports whether now falls inside the configured daytime
// window [MORNING, NIGHT] in the configured timezone. The Outreach Scheduler
// runs only inside the window; the Prospect Ingestor only outside it
// (spec.md §4.5, §4.6). An unknown timezone falls back to UTC rather than
// stalling either service.
func (v Values) InAwakeWindow(now time.Time) bool {
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		loc = time.UTC
	}
	hour := now.In(loc).Hour()
	return v.Morning <= hour && hour <= v.Night
}
