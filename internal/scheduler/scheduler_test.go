package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRegisterRejectsBadInput(t *testing.T) {
	s := New(nil)

	if err := s.Register(Job{Name: "", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("empty name accepted")
	}
	if err := s.Register(Job{Name: "no-func", Schedule: "@hourly"}); err == nil {
		t.Error("nil run function accepted")
	}
	if err := s.Register(Job{
		Name:     "bad-cron",
		Schedule: "not a cron expression",
		Run:      func(context.Context) error { return nil },
	}); err == nil {
		t.Error("invalid cron expression accepted")
	}
}

func TestRunNowRecordsHistory(t *testing.T) {
	s := New(nil)

	ran := make(chan struct{}, 1)
	if err := s.Register(Job{
		Name:     "sweep",
		Schedule: "@hourly",
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := s.RunNow("sweep"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	<-ran

	waitFor(t, func() bool { return len(s.History(10)) == 1 })
	exec := s.History(10)[0]
	if exec.Job != "sweep" || exec.Status != statusCompleted {
		t.Errorf("execution = %+v, want completed sweep", exec)
	}
	if exec.EndedAt == nil {
		t.Error("execution missing end time")
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(nil)
	if err := s.RunNow("missing"); err == nil {
		t.Error("unknown job accepted")
	}
}

func TestFailedJobRecordsError(t *testing.T) {
	s := New(nil)

	if err := s.Register(Job{
		Name:     "flaky",
		Schedule: "@hourly",
		Run: func(context.Context) error {
			return errors.New("backend unavailable")
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := s.RunNow("flaky"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	waitFor(t, func() bool { return len(s.History(10)) == 1 })
	exec := s.History(10)[0]
	if exec.Status != statusFailed || exec.Error != "backend unavailable" {
		t.Errorf("execution = %+v, want failed with error", exec)
	}
}

func TestOverlappingFireIsSkipped(t *testing.T) {
	s := New(nil)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := s.Register(Job{
		Name:     "slow",
		Schedule: "@hourly",
		Run: func(context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("first RunNow failed: %v", err)
	}
	<-started

	// Second fire while the first is still running is a no-op.
	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("second RunNow failed: %v", err)
	}
	waitFor(t, func() bool {
		for _, exec := range s.History(10) {
			if exec.Status == statusSkipped {
				return true
			}
		}
		return false
	})

	close(release)
	waitFor(t, func() bool {
		for _, exec := range s.History(10) {
			if exec.Status == statusCompleted {
				return true
			}
		}
		return false
	})
}

func TestNextRun(t *testing.T) {
	s := New(nil)
	if err := s.Register(Job{
		Name:     "nightly",
		Schedule: "0 0 * * *",
		Run:      func(context.Context) error { return nil },
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := s.NextRun("nightly"); ok {
		t.Error("NextRun reported a time before Start")
	}

	s.Start()
	defer s.Stop()

	next, ok := s.NextRun("nightly")
	if !ok || next.IsZero() {
		t.Errorf("NextRun = %v, %v, want a scheduled time", next, ok)
	}
}
