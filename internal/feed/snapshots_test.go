package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posturepulse/dashboard/internal/posture"
)

func TestSnapshotsKeepOnlyLatestGeneration(t *testing.T) {
	snaps := NewSnapshots()

	first := snaps.Begin("s")
	second := snaps.Begin("s")

	assert.True(t, snaps.Offer("s", second, posture.Dashboard{Empty: false}))
	assert.False(t, snaps.Offer("s", first, posture.Dashboard{Empty: true}))

	snap, ok := snaps.Latest("s")
	require.True(t, ok)
	assert.Equal(t, second, snap.Generation)
	assert.False(t, snap.Dashboard.Empty)
}

func TestSnapshotsSubjectsAreIndependent(t *testing.T) {
	snaps := NewSnapshots()

	a := snaps.Begin("a")
	snaps.Begin("b")

	assert.True(t, snaps.Offer("a", a, posture.Dashboard{}))
	_, ok := snaps.Latest("b")
	assert.False(t, ok)
}
