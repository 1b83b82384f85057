package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

func TestBuildFluxQueryDayWindow(t *testing.T) {
	params := models.DayParams("subject-1", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), time.UTC)

	query := buildFluxQuery(params, "posture")

	assert.Contains(t, query, `from(bucket: "posture")`)
	assert.Contains(t, query, "|> range(start: 2024-03-04T00:00:00Z, stop: 2024-03-05T00:00:00Z)")
	assert.Contains(t, query, `r.subject_id == "subject-1"`)
	assert.Contains(t, query, `desc: false`)
	assert.NotContains(t, query, "limit(")
}

func TestBuildFluxQueryLatest(t *testing.T) {
	query := buildFluxQuery(models.LatestParams("subject-1", 25), "posture")

	assert.Contains(t, query, "|> range(start: 1970-01-01T00:00:00Z)")
	assert.Contains(t, query, `desc: true`)
	assert.True(t, strings.HasSuffix(query, "|> limit(n: 25)\n"))
}

func TestBuildFluxQueryEscapesSubject(t *testing.T) {
	query := buildFluxQuery(models.LatestParams(`a" or true or "`, 1), "posture")

	assert.Contains(t, query, `r.subject_id == "a\" or true or \""`)
}

func TestNewPointOmitsMissingState(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	full := newPoint("s", posture.Sample{ID: "r1", Timestamp: ts, Sitting: ptr(true)})
	partial := newPoint("s", posture.Sample{ID: "r2", Timestamp: ts})

	assert.Len(t, full.FieldList(), 2)
	assert.Len(t, partial.FieldList(), 1)
	assert.Equal(t, ts, full.Time())
}

func ptr(b bool) *bool { return &b }
