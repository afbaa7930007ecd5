package fence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/cmdemu/hal"
)

func TestFenceLifecycle(t *testing.T) {
	f := New("frame")
	if f.Status() != Unsignaled {
		t.Fatalf("status = %s", f.Status())
	}
	if err := f.Wait(0); !errors.Is(err, hal.ErrTimeout) {
		t.Errorf("poll unsignaled = %v", err)
	}
	if err := f.Arm(); err != nil {
		t.Fatal(err)
	}
	if err := f.Arm(); !errors.Is(err, hal.ErrInvalidState) {
		t.Errorf("double Arm = %v", err)
	}
	if err := f.Reset(); !errors.Is(err, hal.ErrInUse) {
		t.Errorf("Reset while armed = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		waitErr = f.Wait(time.Minute)
	}()
	f.Signal()
	wg.Wait()
	if waitErr != nil {
		t.Errorf("Wait = %v", waitErr)
	}
	if f.Status() != Signaled || f.Pending() {
		t.Errorf("after Signal: %s pending=%t", f.Status(), f.Pending())
	}
	if err := f.Arm(); !errors.Is(err, hal.ErrInvalidState) {
		t.Errorf("Arm signaled fence = %v", err)
	}
	if err := f.Reset(); err != nil {
		t.Fatal(err)
	}
	if f.Status() != Unsignaled {
		t.Errorf("after Reset: %s", f.Status())
	}
}

func TestFenceTimeout(t *testing.T) {
	f := New("slow")
	if err := f.Arm(); err != nil {
		t.Fatal(err)
	}
	if err := f.Wait(5 * time.Millisecond); !errors.Is(err, hal.ErrTimeout) {
		t.Errorf("Wait = %v, want ErrTimeout", err)
	}
	if f.Status() != Unsignaled || !f.Pending() {
		t.Error("timeout changed the fence")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.WaitContext(ctx); !errors.Is(err, hal.ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Errorf("WaitContext = %v", err)
	}
}

func TestFenceLost(t *testing.T) {
	f := New("lost")
	if err := f.Arm(); err != nil {
		t.Fatal(err)
	}
	f.Lose()
	if err := f.Wait(time.Second); !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("Wait = %v", err)
	}
	f.Signal()
	if f.Status() != Lost {
		t.Error("Signal after loss changed the status")
	}
	if err := f.Reset(); !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("Reset lost fence = %v", err)
	}
}

func TestNewSignaled(t *testing.T) {
	f := NewSignaled("ready")
	if err := f.Wait(0); err != nil {
		t.Errorf("Wait = %v", err)
	}
	if Status(9).String() != "Unknown" || Lost.String() != "Lost" {
		t.Error("Status.String")
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore("acquire")
	if err := s.Signal(); err != nil {
		t.Fatal(err)
	}
	if err := s.Signal(); !errors.Is(err, hal.ErrInvalidState) {
		t.Errorf("double Signal = %v", err)
	}
	if !s.Signaled() {
		t.Fatal("not signaled")
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Signaled() {
		t.Error("Wait did not consume the signal")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, hal.ErrTimeout) {
		t.Errorf("Wait unsignaled = %v", err)
	}
}
