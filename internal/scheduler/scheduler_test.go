package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/domain"
)

type fakeArchiver struct {
	mu      sync.Mutex
	results []int // returned counts, in order; 0 once exhausted
	limits  []int
	err     error
	panics  bool
}

func (f *fakeArchiver) ArchivePending(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.limits = append(f.limits, limit)
	if len(f.results) == 0 {
		return 0, f.err
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, f.err
}

func (f *fakeArchiver) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.limits)
}

type fakeLocker struct {
	err      error
	unlocked int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.unlocked++ }, nil
}

func newTestScheduler(a Archiver, l Locker) *Scheduler {
	cfg := config.ArchiveConfig{Interval: time.Millisecond, BatchSize: 2, LockTTL: time.Second}
	return NewScheduler(a, l, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestArchiveTick_DrainsFullBatches(t *testing.T) {
	a := &fakeArchiver{results: []int{2, 2, 1}}
	l := &fakeLocker{}
	newTestScheduler(a, l).archiveTick(context.Background())

	if a.calls() != 3 {
		t.Errorf("ArchivePending calls = %d, want 3 (stop after a short batch)", a.calls())
	}
	if l.unlocked != 1 {
		t.Errorf("unlock calls = %d, want 1", l.unlocked)
	}
}

func TestArchiveTick_SkipsWhenLockHeld(t *testing.T) {
	a := &fakeArchiver{}
	newTestScheduler(a, &fakeLocker{err: domain.ErrLockHeld}).archiveTick(context.Background())
	if a.calls() != 0 {
		t.Errorf("ArchivePending ran %d times without the lock", a.calls())
	}
}

func TestArchiveTick_StopsOnError(t *testing.T) {
	a := &fakeArchiver{results: []int{1}, err: errors.New("s3 down")}
	l := &fakeLocker{}
	newTestScheduler(a, l).archiveTick(context.Background())
	if a.calls() != 1 || l.unlocked != 1 {
		t.Errorf("calls = %d, unlocks = %d; want 1, 1", a.calls(), l.unlocked)
	}
}

func TestArchiveTick_RecoversPanic(t *testing.T) {
	newTestScheduler(&fakeArchiver{panics: true}, nil).archiveTick(context.Background())
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := &fakeArchiver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestScheduler(a, nil).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("archive loop never ticked")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
