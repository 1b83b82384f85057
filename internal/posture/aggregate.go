package posture

import (
	"math"
	"slices"
)

// Aggregate derives sessions, summary statistics and the serialized form from
// samples. Malformed samples are dropped and reported in Filtered; the rest
// are stable-sorted by timestamp before a single linear scan.
func Aggregate(samples []Sample, intervalMinutes int) (AggregationResult, error) {
	if intervalMinutes <= 0 {
		return AggregationResult{}, &InvalidConfigError{IntervalMinutes: intervalMinutes}
	}

	valid, filtered := Clean(samples)

	result := AggregationResult{
		Sessions:   []Session{},
		Serialized: make([]SerializedSample, 0, len(valid)),
		Filtered:   filtered,
	}

	var summary Summary
	for i, sample := range valid {
		sitting := *sample.Sitting

		if i == 0 || sitting != *valid[i-1].Sitting {
			result.Sessions = append(result.Sessions, Session{
				Sitting:         sitting,
				StartTime:       sample.Timestamp,
				DurationMinutes: intervalMinutes,
			})
		} else {
			result.Sessions[len(result.Sessions)-1].DurationMinutes += intervalMinutes
		}

		summary.TotalMinutes += intervalMinutes
		if sitting {
			summary.SittingMinutes += intervalMinutes
		} else {
			summary.StandingMinutes += intervalMinutes
		}

		result.Serialized = append(result.Serialized, SerializedSample{
			Timestamp: sample.Timestamp.UTC().Format(TimestampLayout),
			Sitting:   sitting,
		})
	}

	if summary.TotalMinutes > 0 {
		// math.Round rounds half away from zero
		summary.SittingPercentage = int(math.Round(100 * float64(summary.SittingMinutes) / float64(summary.TotalMinutes)))
		summary.StandingPercentage = 100 - summary.SittingPercentage
	}
	summary.SwitchCount = max(len(result.Sessions)-1, 0)

	result.Summary = summary
	return result, nil
}

// Clean drops malformed samples and returns the remainder ordered by
// timestamp. The input slice is not modified.
func Clean(samples []Sample) ([]Sample, []InvalidSampleError) {
	valid := make([]Sample, 0, len(samples))
	var filtered []InvalidSampleError

	for i, sample := range samples {
		switch {
		case sample.Sitting == nil:
			filtered = append(filtered, InvalidSampleError{Index: i, ID: sample.ID, Reason: "missing sitting state"})
		case sample.Timestamp.IsZero():
			filtered = append(filtered, InvalidSampleError{Index: i, ID: sample.ID, Reason: "missing timestamp"})
		default:
			valid = append(valid, sample)
		}
	}

	slices.SortStableFunc(valid, func(a, b Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return valid, filtered
}
