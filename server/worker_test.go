package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorkerDo(t *testing.T) {
	w := NewWorker(new(int))
	defer w.Stop()

	v, err := w.Do(func(n *int) interface{} {
		*n = 41
		return *n + 1
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("got %v, want 42", v)
	}
	if *w.Instance() != 41 {
		t.Errorf("instance = %d, want 41", *w.Instance())
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(0)
	defer w.Stop()

	_, err := w.Do(func(int) interface{} { panic("boom") })
	if err == nil || err.Error() != "boom" {
		t.Fatalf("got %v, want boom", err)
	}

	// Still serving after the panic.
	v, err := w.Do(func(int) interface{} { return "ok" })
	if err != nil || v != "ok" {
		t.Errorf("after panic: %v, %v", v, err)
	}
}

func TestWorkerSerializes(t *testing.T) {
	counter := 0
	w := NewWorker(&counter)
	defer w.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Do(func(c *int) interface{} {
				*c++
				return nil
			})
		}()
	}
	wg.Wait()

	v, _ := w.Do(func(c *int) interface{} { return *c })
	if v.(int) != 50 {
		t.Errorf("counter = %v, want 50", v)
	}
}

func TestWorkerStopped(t *testing.T) {
	w := NewWorker(0)
	w.Stop()
	w.Stop()

	if _, err := w.Do(func(int) interface{} { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop: %v", err)
	}
	if _, err := w.Inspect(context.Background(), func(int) interface{} { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Inspect after Stop: %v", err)
	}
}

func TestWorkerInspectIdle(t *testing.T) {
	w := NewWorker("idle")
	defer w.Stop()

	v, err := w.Inspect(context.Background(), func(s string) interface{} { return s })
	if err != nil || v != "idle" {
		t.Errorf("Inspect: %v, %v", v, err)
	}
}

func TestWorkerInspectAtSafePoint(t *testing.T) {
	w := NewWorker(new(int))
	defer w.Stop()

	release := make(chan struct{})
	entered := make(chan struct{})
	busy := make(chan error, 1)
	go func() {
		_, err := w.Do(func(n *int) interface{} {
			close(entered)
			for i := 1; ; i++ {
				*n = i
				w.ServeInspections()
				select {
				case <-release:
					return nil
				default:
					time.Sleep(time.Millisecond)
				}
			}
		})
		busy <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := w.Inspect(ctx, func(n *int) interface{} { return *n })
	if err != nil {
		t.Fatalf("Inspect during work: %v", err)
	}
	if v.(int) < 1 {
		t.Errorf("inspected %v, want a counter value", v)
	}

	close(release)
	if err := <-busy; err != nil {
		t.Errorf("Do: %v", err)
	}
}

func TestWorkerInspectCanceled(t *testing.T) {
	w := NewWorker(0)
	defer w.Stop()

	release := make(chan struct{})
	entered := make(chan struct{})
	go w.Do(func(int) interface{} {
		close(entered)
		<-release
		return nil
	})
	<-entered
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.Inspect(ctx, func(int) interface{} { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}
