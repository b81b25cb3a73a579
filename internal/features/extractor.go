// File: internal/features/extractor.go
package features

import (
	"math"
	"sort"
	"time"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// Width is the number of features in a Vector.
const Width = 6

// Vector is the fixed-width numeric summary of an event list.
// Layout: count, mean severity, max severity, severity std dev,
// mean days since, max days since.
type Vector [Width]float64

func (v Vector) Count() float64         { return v[0] }
func (v Vector) MeanSeverity() float64  { return v[1] }
func (v Vector) MaxSeverity() float64   { return v[2] }
func (v Vector) SeverityStd() float64   { return v[3] }
func (v Vector) MeanDaysSince() float64 { return v[4] }
func (v Vector) MaxDaysSince() float64  { return v[5] }

// Names returns feature names in Vector order.
func Names() []string {
	return []string{"count", "mean_severity", "max_severity", "severity_std", "mean_days_since", "max_days_since"}
}

// DaysSince returns whole days elapsed between ts and now, never negative.
func DaysSince(ts, now time.Time) float64 {
	d := now.Sub(ts)
	if d <= 0 {
		return 0
	}
	return math.Floor(d.Hours() / 24)
}

// Extract summarises events as seen at now. Empty input yields the zero vector.
func Extract(events []schemas.Event, now time.Time) Vector {
	var v Vector
	n := len(events)
	if n == 0 {
		return v
	}

	var sumSev, maxSev, sumDays, maxDays float64
	for _, e := range events {
		sumSev += e.Severity
		if e.Severity > maxSev {
			maxSev = e.Severity
		}
		days := DaysSince(e.Timestamp, now)
		sumDays += days
		if days > maxDays {
			maxDays = days
		}
	}
	mean := sumSev / float64(n)

	var std float64
	if n >= 2 {
		var sq float64
		for _, e := range events {
			d := e.Severity - mean
			sq += d * d
		}
		std = math.Sqrt(sq / float64(n))
	}

	v[0] = float64(n)
	v[1] = mean
	v[2] = maxSev
	v[3] = std
	v[4] = sumDays / float64(n)
	v[5] = maxDays
	return v
}

// Filter keeps events whose type is in types.
func Filter(events []schemas.Event, types []schemas.EventType) []schemas.Event {
	if len(types) == 0 {
		return nil
	}
	allowed := make(map[schemas.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	out := make([]schemas.Event, 0, len(events))
	for _, e := range events {
		if _, ok := allowed[e.Type]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ExtractDomain filters events to the domain's types and extracts.
func ExtractDomain(events []schemas.Event, types []schemas.EventType, now time.Time) Vector {
	return Extract(Filter(events, types), now)
}

// TypeDistribution counts events per type.
func TypeDistribution(events []schemas.Event) map[schemas.EventType]int {
	dist := make(map[schemas.EventType]int)
	for _, e := range events {
		dist[e.Type]++
	}
	return dist
}

// TopTypes returns up to n event types ordered by frequency, ties broken by name.
func TopTypes(events []schemas.Event, n int) []schemas.EventType {
	dist := TypeDistribution(events)
	types := make([]schemas.EventType, 0, len(dist))
	for t := range dist {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if dist[types[i]] != dist[types[j]] {
			return dist[types[i]] > dist[types[j]]
		}
		return types[i] < types[j]
	})
	if len(types) > n {
		types = types[:n]
	}
	return types
}

// Velocity is the number of events per day inside the trailing window.
func Velocity(events []schemas.Event, windowDays int, now time.Time) float64 {
	if windowDays <= 0 {
		return 0
	}
	recent := 0
	for _, e := range events {
		if DaysSince(e.Timestamp, now) <= float64(windowDays) {
			recent++
		}
	}
	return float64(recent) / float64(windowDays)
}

// RecentCount counts events no older than days.
func RecentCount(events []schemas.Event, days int, now time.Time) int {
	n := 0
	for _, e := range events {
		if DaysSince(e.Timestamp, now) <= float64(days) {
			n++
		}
	}
	return n
}

// Clusters counts chronologically adjacent event pairs that fall within
// windowDays of each other.
func Clusters(events []schemas.Event, windowDays int) int {
	if len(events) < 2 {
		return 0
	}
	ts := make([]time.Time, len(events))
	for i, e := range events {
		ts[i] = e.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	window := time.Duration(windowDays) * 24 * time.Hour
	clusters := 0
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) <= window {
			clusters++
		}
	}
	return clusters
}

// Timespan is the whole-day distance between the oldest and newest event.
func Timespan(events []schemas.Event) int {
	if len(events) == 0 {
		return 0
	}
	oldest, newest := events[0].Timestamp, events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	return int(DaysSince(oldest, newest))
}
