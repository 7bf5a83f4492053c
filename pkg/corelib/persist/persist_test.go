package persist

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDriverSavesOnTick(t *testing.T) {
	var count int32
	d := New(20*time.Millisecond, func() error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&count) < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", count)
	}
}

func TestDriverForceSavesImmediatelyWhenIdle(t *testing.T) {
	var count int32
	d := New(time.Hour, func() error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Force()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected exactly 1 forced save, got %d", count)
	}
}

func TestDriverStopWaitsForInFlightDebouncedSave(t *testing.T) {
	var calls, count int32
	saveSecondStarted := make(chan struct{})
	d := New(time.Hour, func() error {
		if atomic.AddInt32(&calls, 1) == 2 {
			close(saveSecondStarted)
			time.Sleep(80 * time.Millisecond)
		}
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(runDone)
	}()

	d.Force() // call #1: idle, fires immediately
	time.Sleep(20 * time.Millisecond)
	d.Force() // call #2: within the debounce window, deferred to a background goroutine

	<-saveSecondStarted // the deferred save is now mid-flight, sleeping inside save()

	stopDone := make(chan struct{})
	go func() {
		d.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while the deferred debounced save was still in flight")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned")
	}
	<-runDone

	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("expected both saves to have completed by the time Stop returned, got %d", got)
	}
}

func TestDriverForceDebouncesRapidCalls(t *testing.T) {
	var count int32
	d := New(time.Hour, func() error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		d.Force()
	}
	time.Sleep(260 * time.Millisecond)
	cancel()
	<-done

	if got := atomic.LoadInt32(&count); got < 1 || got > 2 {
		t.Fatalf("expected 1-2 saves from 10 rapid forces within the 200ms debounce window, got %d", got)
	}
}
