// File: internal/features/extractor_test.go
package features

import (
	"math"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(t schemas.EventType, sev float64, daysAgo int) schemas.Event {
	return schemas.Event{
		ID:        string(t),
		Type:      t,
		Severity:  sev,
		Timestamp: now.Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
}

func TestExtract(t *testing.T) {
	t.Run("empty input is the zero vector", func(t *testing.T) {
		assert.Equal(t, Vector{}, Extract(nil, now))
	})

	t.Run("single event has zero deviation", func(t *testing.T) {
		v := Extract([]schemas.Event{ev(schemas.EventFeePayment, 0.7, 3)}, now)
		assert.Equal(t, 1.0, v.Count())
		assert.Equal(t, 0.7, v.MeanSeverity())
		assert.Equal(t, 0.7, v.MaxSeverity())
		assert.Equal(t, 0.0, v.SeverityStd())
		assert.Equal(t, 3.0, v.MeanDaysSince())
		assert.Equal(t, 3.0, v.MaxDaysSince())
	})

	t.Run("population statistics", func(t *testing.T) {
		events := []schemas.Event{
			ev(schemas.EventFeePayment, 0.2, 2),
			ev(schemas.EventAccountHold, 0.6, 10),
		}
		v := Extract(events, now)
		assert.Equal(t, 2.0, v.Count())
		assert.InDelta(t, 0.4, v.MeanSeverity(), 1e-9)
		assert.Equal(t, 0.6, v.MaxSeverity())
		assert.InDelta(t, 0.2, v.SeverityStd(), 1e-9)
		assert.Equal(t, 6.0, v.MeanDaysSince())
		assert.Equal(t, 10.0, v.MaxDaysSince())
	})

	t.Run("future timestamps clamp to zero days", func(t *testing.T) {
		v := Extract([]schemas.Event{ev(schemas.EventMessCard, 0.5, -2)}, now)
		assert.Equal(t, 0.0, v.MaxDaysSince())
	})
}

func TestExtractDomain(t *testing.T) {
	events := []schemas.Event{
		ev(schemas.EventFeePayment, 0.9, 1),
		ev(schemas.EventHostelAccess, 0.4, 1),
		ev(schemas.EventScholarshipDelay, 0.5, 5),
	}
	v := ExtractDomain(events, schemas.DomainEventTypes[schemas.DomainFinancial], now)
	assert.Equal(t, 2.0, v.Count())
	assert.InDelta(t, 0.7, v.MeanSeverity(), 1e-9)

	none := ExtractDomain(events, schemas.DomainEventTypes[schemas.DomainLanguage], now)
	assert.Equal(t, Vector{}, none)
}

func TestAuxiliaryFeatures(t *testing.T) {
	events := []schemas.Event{
		ev(schemas.EventFeePayment, 0.5, 1),
		ev(schemas.EventFeePayment, 0.5, 5),
		ev(schemas.EventAccountHold, 0.5, 40),
		ev(schemas.EventMessCard, 0.5, 80),
	}

	t.Run("velocity over trailing window", func(t *testing.T) {
		assert.InDelta(t, 2.0/30.0, Velocity(events, 30, now), 1e-9)
		assert.Equal(t, 0.0, Velocity(events, 0, now))
	})

	t.Run("clusters count adjacent pairs within the window", func(t *testing.T) {
		// 1d-5d gap is 4 days; 5d-40d is 35; 40d-80d is 40.
		assert.Equal(t, 1, Clusters(events, 14))
		assert.Equal(t, 3, Clusters(events, 60))
		assert.Equal(t, 0, Clusters(events[:1], 14))
	})

	t.Run("type distribution and top types", func(t *testing.T) {
		dist := TypeDistribution(events)
		assert.Equal(t, 2, dist[schemas.EventFeePayment])
		assert.Equal(t, []schemas.EventType{schemas.EventFeePayment, schemas.EventAccountHold}, TopTypes(events, 2))
	})

	t.Run("timespan", func(t *testing.T) {
		assert.Equal(t, 79, Timespan(events))
		assert.Equal(t, 0, Timespan(nil))
	})

	t.Run("recent count", func(t *testing.T) {
		assert.Equal(t, 2, RecentCount(events, 30, now))
	})
}

func FuzzExtract(f *testing.F) {
	f.Add([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		n, err := consumer.GetInt()
		if err != nil {
			return
		}
		n = n % 32
		if n < 0 {
			n = -n
		}
		events := make([]schemas.Event, 0, n)
		for i := 0; i < n; i++ {
			sev, err := consumer.GetInt()
			if err != nil {
				break
			}
			days, err := consumer.GetInt()
			if err != nil {
				break
			}
			events = append(events, ev(schemas.EventAdminWarning, math.Abs(float64(sev%101))/100, days%400))
		}

		v := Extract(events, now)
		require.Equal(t, float64(len(events)), v.Count())
		for i, x := range v {
			require.False(t, math.IsNaN(x), "feature %d is NaN", i)
			require.GreaterOrEqual(t, x, 0.0)
		}
		if len(events) > 0 {
			require.LessOrEqual(t, v.MeanSeverity(), v.MaxSeverity()+1e-12)
			require.LessOrEqual(t, v.MeanDaysSince(), v.MaxDaysSince()+1e-12)
		}
	})
}
