package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

func TestBuildSelectDayWindow(t *testing.T) {
	day := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	params := models.DayParams("subject-1", day, time.UTC)

	query, args := buildSelect(params)

	assert.Equal(t,
		"SELECT id, ts, sitting FROM posture_records WHERE subject_id = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC, id ASC",
		query)
	assert.Equal(t, []any{
		"subject-1",
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}, args)
}

func TestBuildSelectLatest(t *testing.T) {
	query, args := buildSelect(models.LatestParams("subject-1", 50))

	assert.Equal(t,
		"SELECT id, ts, sitting FROM posture_records WHERE subject_id = $1 ORDER BY ts DESC, id DESC LIMIT $2",
		query)
	assert.Equal(t, []any{"subject-1", 50}, args)
}

func TestBuildSelectBoundedWithLimit(t *testing.T) {
	params := models.QueryParams{
		SubjectID: "s",
		StartTime: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Limit:     10,
	}

	query, args := buildSelect(params)

	assert.Equal(t,
		"SELECT id, ts, sitting FROM posture_records WHERE subject_id = $1 AND ts >= $2 ORDER BY ts ASC, id ASC LIMIT $3",
		query)
	assert.Len(t, args, 3)
}

func TestRecordsAreKeyedBySubject(t *testing.T) {
	assert.Contains(t, schema, "PRIMARY KEY (subject_id, id)")
	assert.NotContains(t, schema, "id          TEXT PRIMARY KEY")
	assert.Contains(t, upsertRecord, "ON CONFLICT (subject_id, id) DO UPDATE")
	assert.NotContains(t, upsertRecord, "ON CONFLICT (id)")
}

func TestUpsertArgsUseCallerSubject(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	sample := posture.NewSample(ts, false)
	sample.ID = "victim-20240304-mock-0"

	args := upsertArgs("intruder", sample)

	require.Len(t, args, 4)
	assert.Equal(t, "victim-20240304-mock-0", args[0])
	assert.Equal(t, "intruder", args[1], "conflict target is scoped to the writing subject")
	assert.Equal(t, ts, args[2])
}
