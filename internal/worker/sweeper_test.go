package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	remaining int
	calls     int
	err       error
}

func (f *fakeReleaser) ReleaseExpired(_ context.Context, limit int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n := min(limit, f.remaining)
	f.remaining -= n
	return n, nil
}

func TestSweepDrainsInBatches(t *testing.T) {
	r := &fakeReleaser{remaining: 25}
	s := NewSweeper(r, nil, time.Minute, 10)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, 3, r.calls)
}

func TestSweepPurgesDedupRecords(t *testing.T) {
	store := dedup.NewMemoryStore(time.Nanosecond)
	require.NoError(t, store.Mark(context.Background(), "g", "e1"))
	time.Sleep(time.Millisecond)

	s := NewSweeper(&fakeReleaser{}, store, time.Minute, 10)
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	n, err := store.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "already purged by the sweep")
}

func TestSweepReportsErrors(t *testing.T) {
	s := NewSweeper(&fakeReleaser{err: errors.New("db down")}, nil, time.Minute, 10)
	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeReleaser{}
	s := NewSweeper(r, nil, 5*time.Millisecond, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Positive(t, r.calls)
}
