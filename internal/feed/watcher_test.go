package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/posture"
)

type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (l *countingLoader) TodayDashboard(_ context.Context, subjectID string) (posture.Dashboard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[subjectID]++
	if l.err != nil {
		return posture.Dashboard{}, l.err
	}
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	samples := make([]posture.Sample, 0, l.calls[subjectID])
	for i := 0; i < l.calls[subjectID]; i++ {
		samples = append(samples, posture.NewSample(base.Add(time.Duration(i)*5*time.Minute), true))
	}
	return posture.BuildDashboard(samples, 5, time.UTC)
}

func startWatcher(t *testing.T, loader Loader) (*Publisher, *Snapshots, context.CancelFunc, <-chan error) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	snaps := NewSnapshots()
	watcher := NewWatcher(client, "posture:updates", loader, snaps, prometheus.NewRegistry(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx)
	}()

	select {
	case <-watcher.Ready():
	case err := <-done:
		t.Fatalf("watcher stopped before subscribing: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not subscribe")
	}

	return NewPublisher(client, "posture:updates"), snaps, cancel, done
}

func TestWatcherRefreshesSnapshotOnPublish(t *testing.T) {
	loader := &countingLoader{}
	pub, snaps, cancel, done := startWatcher(t, loader)

	require.NoError(t, pub.Publish(context.Background(), "subject-1"))

	require.Eventually(t, func() bool {
		_, ok := snaps.Latest("subject-1")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	snap, _ := snaps.Latest("subject-1")
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 5, snap.Dashboard.Summary.TotalMinutes)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherKeepsNewestGeneration(t *testing.T) {
	loader := &countingLoader{}
	pub, snaps, _, _ := startWatcher(t, loader)

	for i := 0; i < 3; i++ {
		require.NoError(t, pub.Publish(context.Background(), "subject-1"))
	}

	require.Eventually(t, func() bool {
		snap, ok := snaps.Latest("subject-1")
		return ok && snap.Generation == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherLoaderErrorLeavesNoSnapshot(t *testing.T) {
	loader := &countingLoader{err: errors.New("store down")}
	pub, snaps, _, _ := startWatcher(t, loader)

	require.NoError(t, pub.Publish(context.Background(), "subject-1"))

	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.calls["subject-1"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := snaps.Latest("subject-1")
	assert.False(t, ok)
}
