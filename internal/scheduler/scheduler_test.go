package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_FiresOnceAtInstant(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Close()

	var fired int32
	done := make(chan struct{})
	id := s.Schedule(time.Now().Add(20*time.Millisecond), func(context.Context) {
		if atomic.AddInt32(&fired, 1) == 1 {
			close(done)
		}
	})
	require.NotEmpty(t, id)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("action did not fire")
	}

	// Give a wrongly-duplicated fire a chance to show up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_PastInstantFiresImmediately(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Close()

	done := make(chan struct{})
	s.Schedule(time.Now().Add(-time.Minute), func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("past-instant action did not fire")
	}
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Close()

	var fired int32
	id := s.Schedule(time.Now().Add(50*time.Millisecond), func(context.Context) {
		atomic.AddInt32(&fired, 1)
	})

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id), "second cancel reports nothing pending")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestScheduler_CloseDropsPendingEntries(t *testing.T) {
	s := New(zap.NewNop())

	var fired int32
	s.Schedule(time.Now().Add(time.Hour), func(context.Context) {
		atomic.AddInt32(&fired, 1)
	})
	s.Close()

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Empty(t, s.Schedule(time.Now(), func(context.Context) {}))
}
