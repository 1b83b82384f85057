package posture

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	mockDayIntervals   = 96 // 8 hours of 5 minute samples
	mockMinSession     = 2
	mockMaxSession     = 12
	mockStartHourOfDay = 9
)

// MockDay generates a working day of samples starting at 09:00 on day, with
// sessions lasting between 10 and 60 minutes.
func MockDay(day time.Time, rng *rand.Rand) []Sample {
	start := time.Date(day.Year(), day.Month(), day.Day(), mockStartHourOfDay, 0, 0, 0, day.Location())

	samples := make([]Sample, 0, mockDayIntervals)
	sitting := true
	remaining := 0

	for i := 0; i < mockDayIntervals; i++ {
		if remaining <= 0 {
			sitting = !sitting
			remaining = rng.Intn(mockMaxSession-mockMinSession+1) + mockMinSession
		}

		sample := NewSample(start.Add(time.Duration(i*DefaultIntervalMinutes)*time.Minute), sitting)
		sample.ID = fmt.Sprintf("mock-%d", i)
		samples = append(samples, sample)
		remaining--
	}
	return samples
}
