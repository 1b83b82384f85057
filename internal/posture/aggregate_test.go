package posture

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func seq(states ...bool) []Sample {
	samples := make([]Sample, len(states))
	for i, sitting := range states {
		samples[i] = NewSample(t0.Add(time.Duration(i*5)*time.Minute), sitting)
	}
	return samples
}

func TestAggregate_SitThenStand(t *testing.T) {
	result, err := Aggregate(seq(true, true, false, false, false), 5)
	require.NoError(t, err)

	assert.Equal(t, []Session{
		{Sitting: true, StartTime: t0, DurationMinutes: 10},
		{Sitting: false, StartTime: t0.Add(10 * time.Minute), DurationMinutes: 15},
	}, result.Sessions)
	assert.Equal(t, Summary{
		TotalMinutes:       25,
		SittingMinutes:     10,
		StandingMinutes:    15,
		SittingPercentage:  40,
		StandingPercentage: 60,
		SwitchCount:        1,
	}, result.Summary)
}

func TestAggregate_Empty(t *testing.T) {
	result, err := Aggregate(nil, 5)
	require.NoError(t, err)

	assert.Empty(t, result.Sessions)
	assert.NotNil(t, result.Sessions)
	assert.Empty(t, result.Serialized)
	assert.Equal(t, Summary{}, result.Summary)
}

func TestAggregate_AllSitting(t *testing.T) {
	result, err := Aggregate(seq(true, true, true, true, true), 5)
	require.NoError(t, err)

	require.Len(t, result.Sessions, 1)
	assert.Equal(t, 25, result.Sessions[0].DurationMinutes)
	assert.Equal(t, 100, result.Summary.SittingPercentage)
	assert.Equal(t, 0, result.Summary.StandingPercentage)
	assert.Equal(t, 0, result.Summary.SwitchCount)
}

func TestAggregate_Alternating(t *testing.T) {
	result, err := Aggregate(seq(true, false, true, false), 5)
	require.NoError(t, err)

	require.Len(t, result.Sessions, 4)
	for _, s := range result.Sessions {
		assert.Equal(t, 5, s.DurationMinutes)
	}
	assert.Equal(t, 3, result.Summary.SwitchCount)
	assert.Equal(t, 50, result.Summary.SittingPercentage)
}

func TestAggregate_InvalidInterval(t *testing.T) {
	for _, interval := range []int{0, -5} {
		_, err := Aggregate(seq(true), interval)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))

		var cfgErr *InvalidConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, interval, cfgErr.IntervalMinutes)
	}
}

func TestAggregate_FiltersMalformedSamples(t *testing.T) {
	samples := seq(true, true, false)
	samples = append(samples,
		Sample{ID: "no-state", Timestamp: t0.Add(15 * time.Minute)},
		Sample{ID: "no-time", Sitting: NewSample(time.Time{}, true).Sitting},
	)

	result, err := Aggregate(samples, 5)
	require.NoError(t, err)

	assert.Equal(t, 15, result.Summary.TotalMinutes)
	assert.Len(t, result.Serialized, 3)
	require.Len(t, result.Filtered, 2)
	assert.Equal(t, 3, result.Filtered[0].Index)
	assert.Equal(t, "no-state", result.Filtered[0].ID)
	assert.Equal(t, 4, result.Filtered[1].Index)
	assert.True(t, errors.Is(result.Filtered[0], ErrInvalidSample))
}

func TestAggregate_AllFilteredIsZero(t *testing.T) {
	result, err := Aggregate([]Sample{{ID: "a", Timestamp: t0}, {ID: "b", Timestamp: t0}}, 5)
	require.NoError(t, err)

	assert.Equal(t, Summary{}, result.Summary)
	assert.Empty(t, result.Sessions)
	assert.Len(t, result.Filtered, 2)
}

func TestAggregate_SortsUnorderedInput(t *testing.T) {
	ordered := seq(true, true, false, false, true)
	shuffled := []Sample{ordered[3], ordered[0], ordered[4], ordered[2], ordered[1]}

	want, err := Aggregate(ordered, 5)
	require.NoError(t, err)
	got, err := Aggregate(shuffled, 5)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, ordered[3], shuffled[0], "input must not be reordered in place")
}

func TestAggregate_SerializedForm(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	samples := []Sample{NewSample(time.Date(2024, 3, 4, 11, 0, 0, 0, loc), false)}

	result, err := Aggregate(samples, 5)
	require.NoError(t, err)

	assert.Equal(t, []SerializedSample{{Timestamp: "2024-03-04T09:00:00.000Z", Sitting: false}}, result.Serialized)
}

func TestAggregate_PercentageRoundsHalfUp(t *testing.T) {
	// 1 of 8 sitting is 12.5%
	result, err := Aggregate(seq(true, false, false, false, false, false, false, false), 5)
	require.NoError(t, err)

	assert.Equal(t, 13, result.Summary.SittingPercentage)
	assert.Equal(t, 87, result.Summary.StandingPercentage)
}

func TestAggregate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		n := rng.Intn(60)
		states := make([]bool, n)
		for i := range states {
			states[i] = rng.Intn(2) == 0
		}
		interval := rng.Intn(10) + 1

		result, err := Aggregate(seq(states...), interval)
		require.NoError(t, err)
		s := result.Summary

		sum, count := 0, 0
		for i, session := range result.Sessions {
			sum += session.DurationMinutes
			count += session.DurationMinutes / interval
			if i > 0 {
				assert.NotEqual(t, result.Sessions[i-1].Sitting, session.Sitting)
			}
		}
		assert.Equal(t, s.TotalMinutes, sum)
		assert.Equal(t, n, count)
		assert.Equal(t, s.TotalMinutes, s.SittingMinutes+s.StandingMinutes)
		assert.Equal(t, max(len(result.Sessions)-1, 0), s.SwitchCount)
		if s.TotalMinutes > 0 {
			assert.Equal(t, 100, s.SittingPercentage+s.StandingPercentage)
		} else {
			assert.Zero(t, s.SittingPercentage)
			assert.Zero(t, s.StandingPercentage)
		}

		again, err := Aggregate(seq(states...), interval)
		require.NoError(t, err)
		assert.Equal(t, result, again)
	}
}
