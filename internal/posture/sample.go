package posture

import (
	"errors"
	"fmt"
	"time"
)

// DefaultIntervalMinutes is the sampling interval reported by the posture sensors
const DefaultIntervalMinutes = 5

// TimestampLayout is the ISO-8601 form used for serialized samples
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Sample is one sitting/standing observation
type Sample struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Sitting is nil when the source delivered a partially populated record
	Sitting *bool `json:"sitting"`
}

// NewSample builds a fully populated sample
func NewSample(ts time.Time, sitting bool) Sample {
	return Sample{Timestamp: ts, Sitting: &sitting}
}

// Session is a maximal run of samples sharing the same state
type Session struct {
	Sitting         bool      `json:"sitting"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

// EndTime returns the instant the session's last interval closes
func (s Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Summary is the aggregate view over a sample set
type Summary struct {
	TotalMinutes       int `json:"totalMinutes"`
	SittingMinutes     int `json:"sittingMinutes"`
	StandingMinutes    int `json:"standingMinutes"`
	SittingPercentage  int `json:"sittingPercentage"`
	StandingPercentage int `json:"standingPercentage"`
	SwitchCount        int `json:"switchCount"`
}

// SerializedSample is the flat form handed to the text generation service
type SerializedSample struct {
	Timestamp string `json:"timestamp"`
	Sitting   bool   `json:"sitting"`
}

// AggregationResult holds everything derived from one sample set
type AggregationResult struct {
	Sessions   []Session            `json:"sessions"`
	Summary    Summary              `json:"summary"`
	Serialized []SerializedSample   `json:"serialized"`
	Filtered   []InvalidSampleError `json:"filtered,omitempty"`
}

var (
	// ErrInvalidConfig matches every InvalidConfigError
	ErrInvalidConfig = errors.New("invalid aggregation config")
	// ErrInvalidSample matches every InvalidSampleError
	ErrInvalidSample = errors.New("invalid posture sample")
)

// InvalidConfigError reports a non-positive sampling interval
type InvalidConfigError struct {
	IntervalMinutes int
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("interval must be a positive number of minutes, got %d", e.IntervalMinutes)
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// InvalidSampleError describes a sample dropped before aggregation
type InvalidSampleError struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func (e InvalidSampleError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("sample %d (%s): %s", e.Index, e.ID, e.Reason)
	}
	return fmt.Sprintf("sample %d: %s", e.Index, e.Reason)
}

func (e InvalidSampleError) Is(target error) bool {
	return target == ErrInvalidSample
}
