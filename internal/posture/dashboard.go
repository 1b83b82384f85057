package posture

import (
	"fmt"
	"time"
)

// HourBucket sums the minutes of samples taken within one hour of the day
type HourBucket struct {
	Hour     int    `json:"hour"`
	Label    string `json:"label"`
	Sitting  int    `json:"sitting"`
	Standing int    `json:"standing"`
}

// TimelineSegment is a session sized relative to the whole window
type TimelineSegment struct {
	Session
	EndTime      time.Time `json:"endTime"`
	WidthPercent float64   `json:"widthPercent"`
}

// StatCards are the headline figures shown above the charts
type StatCards struct {
	SittingTime  string `json:"sittingTime"`
	StandingTime string `json:"standingTime"`
	Switches     int    `json:"switches"`
	ActiveTime   string `json:"activeTime"`
}

// Dashboard bundles the aggregation with the chart and timeline views
type Dashboard struct {
	AggregationResult
	Cards    StatCards         `json:"cards"`
	Hourly   []HourBucket      `json:"hourly"`
	Timeline []TimelineSegment `json:"timeline"`
	// Empty is set when no usable sample remained, which renders as "no activity"
	Empty bool `json:"empty"`
}

// BuildDashboard aggregates samples and derives the hourly chart and timeline.
// Hours are bucketed in loc; a nil loc means UTC.
func BuildDashboard(samples []Sample, intervalMinutes int, loc *time.Location) (Dashboard, error) {
	result, err := Aggregate(samples, intervalMinutes)
	if err != nil {
		return Dashboard{}, err
	}

	valid, _ := Clean(samples)

	return Dashboard{
		AggregationResult: result,
		Cards: StatCards{
			SittingTime:  FormatMinutes(result.Summary.SittingMinutes),
			StandingTime: FormatMinutes(result.Summary.StandingMinutes),
			Switches:     result.Summary.SwitchCount,
			ActiveTime:   FormatMinutes(result.Summary.TotalMinutes),
		},
		Hourly:   HourlyBuckets(valid, intervalMinutes, loc),
		Timeline: Timeline(result.Sessions),
		Empty:    len(result.Sessions) == 0,
	}, nil
}

// HourlyBuckets adds one interval per sample to the bucket of its hour of day.
// Only hours with activity are returned, in ascending order.
func HourlyBuckets(samples []Sample, intervalMinutes int, loc *time.Location) []HourBucket {
	if loc == nil {
		loc = time.UTC
	}

	var hours [24]HourBucket
	for _, sample := range samples {
		if sample.Sitting == nil || sample.Timestamp.IsZero() {
			continue
		}
		hour := sample.Timestamp.In(loc).Hour()
		if *sample.Sitting {
			hours[hour].Sitting += intervalMinutes
		} else {
			hours[hour].Standing += intervalMinutes
		}
	}

	buckets := make([]HourBucket, 0)
	for hour, bucket := range hours {
		if bucket.Sitting == 0 && bucket.Standing == 0 {
			continue
		}
		bucket.Hour = hour
		bucket.Label = hourLabel(hour)
		buckets = append(buckets, bucket)
	}
	return buckets
}

// Timeline sizes each session as a share of the total duration
func Timeline(sessions []Session) []TimelineSegment {
	total := 0
	for _, s := range sessions {
		total += s.DurationMinutes
	}

	segments := make([]TimelineSegment, 0, len(sessions))
	for _, s := range sessions {
		width := 0.0
		if total > 0 {
			width = float64(s.DurationMinutes) / float64(total) * 100
		}
		segments = append(segments, TimelineSegment{
			Session:      s,
			EndTime:      s.EndTime(),
			WidthPercent: width,
		})
	}
	return segments
}

// FormatMinutes renders minutes as "1h 5m"
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func hourLabel(hour int) string {
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d%s", h12, suffix)
}
