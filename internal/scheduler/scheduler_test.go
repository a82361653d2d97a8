// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueUnknownJob(t *testing.T) {
	s := New()
	if err := s.Enqueue("nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	s := New()
	s.RegisterInterval("noop", func(context.Context) error { return nil }, time.Hour, time.Hour)

	// The worker is not running, so the queue only drains on Serve.
	for i := 0; i < queueCapacity; i++ {
		if err := s.Enqueue("noop"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := s.Enqueue("noop"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestManualRunExecutesJob(t *testing.T) {
	var runs atomic.Int32

	s := New()
	s.RegisterInterval("counter", func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	if err := s.Enqueue("counter"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	history := s.History()
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if history[0].Job != "counter" || history[0].Trigger != TriggerManual || history[0].Result != "success" {
		t.Errorf("history[0] = %+v", history[0])
	}
}

func TestJobErrorRecordedNotFatal(t *testing.T) {
	s := New()
	s.RegisterInterval("failing", func(context.Context) error {
		return errors.New("boom")
	}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	if err := s.Enqueue("failing"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(s.History()) == 0 {
		select {
		case <-deadline:
			t.Fatal("job never recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	run := s.History()[0]
	if run.Result != "error" || run.Error != "boom" {
		t.Errorf("run = %+v, want error result", run)
	}
}

func TestJobPanicContained(t *testing.T) {
	s := New()
	s.RegisterInterval("panicky", func(context.Context) error {
		panic("unexpected state")
	}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	if err := s.Enqueue("panicky"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(s.History()) == 0 {
		select {
		case <-deadline:
			t.Fatal("panicking job never recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	run := s.History()[0]
	if run.Result != "panic" {
		t.Errorf("Result = %q, want panic", run.Result)
	}
}

func TestIntervalTriggerFiresAfterStartDelay(t *testing.T) {
	var runs atomic.Int32

	s := New()
	s.RegisterInterval("quick", func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Hour, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("interval trigger never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if got := s.History()[0].Trigger; got != TriggerInterval {
		t.Errorf("Trigger = %q, want %q", got, TriggerInterval)
	}
}

func TestRegisterCronRejectsBadExpression(t *testing.T) {
	s := New()
	err := s.RegisterCron("bad", func(context.Context) error { return nil }, "not a cron")
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestRegisterCronRejectsImpossibleDate(t *testing.T) {
	s := New()
	// April 31st parses field-by-field but never occurs; registering it
	// must fail instead of arming a trigger that can never fire cleanly.
	err := s.RegisterCron("never", func(context.Context) error { return nil }, "0 0 31 4 *")
	if err == nil {
		t.Fatal("expected error for calendar-impossible cron expression")
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("rejected job should not be registered, got %v", s.Jobs())
	}
}

func TestCronTriggerDisablesOnZeroNextRun(t *testing.T) {
	var runs atomic.Int32

	// Bypass RegisterCron's validation to exercise the trigger's own guard
	// against expressions with no future match.
	expr, err := ParseCron("0 0 30 2 *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	s := New()
	s.register(&job{
		name: "never",
		fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
		cron:     expr,
		cronExpr: "0 0 30 2 *",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	// With a busy-looping trigger this window would record many runs.
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done

	if got := runs.Load(); got != 0 {
		t.Errorf("job ran %d times, want 0", got)
	}
	if got := len(s.History()); got != 0 {
		t.Errorf("history has %d entries, want 0", got)
	}
}

func TestJobsReportsTriggers(t *testing.T) {
	s := New()
	s.RegisterInterval(JobLibrarySync, func(context.Context) error { return nil }, 6*time.Hour, 2*time.Minute)
	if err := s.RegisterCron(JobDueNotify, func(context.Context) error { return nil }, "0 3 * * *"); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	if jobs[0].Name != JobLibrarySync || jobs[0].Interval != "6h0m0s" {
		t.Errorf("jobs[0] = %+v", jobs[0])
	}
	if jobs[1].Name != JobDueNotify || jobs[1].Cron != "0 3 * * *" {
		t.Errorf("jobs[1] = %+v", jobs[1])
	}
	if jobs[1].NextCronRun == nil || jobs[1].NextCronRun.Hour() != 3 {
		t.Errorf("NextCronRun = %v, want a 3am slot", jobs[1].NextCronRun)
	}
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	var runs atomic.Int32

	s := New()
	s.RegisterInterval("counter", func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	const total = historyCapacity + 10
	for i := 0; i < total; i++ {
		// Wait for the previous run to drain so the queue never fills.
		deadline := time.After(2 * time.Second)
		for int(runs.Load()) < i {
			select {
			case <-deadline:
				t.Fatalf("stalled waiting for run %d", i)
			case <-time.After(time.Millisecond):
			}
		}
		if err := s.Enqueue("counter"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	deadline := time.After(5 * time.Second)
	for int(runs.Load()) < total {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d runs completed", runs.Load(), total)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	history := s.History()
	if len(history) != historyCapacity {
		t.Errorf("history length = %d, want %d", len(history), historyCapacity)
	}
}
