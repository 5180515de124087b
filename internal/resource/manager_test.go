package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(1000)

	h1, err := p.Acquire(400)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := p.Acquire(600)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().OutstandingBytes; got != 1000 {
		t.Errorf("outstanding = %d, want 1000", got)
	}

	if _, err := p.Acquire(1); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("over-budget acquire: err = %v, want ErrOutOfMemory", err)
	}

	h1.Release()
	if got := p.Stats().OutstandingBytes; got != 600 {
		t.Errorf("after release: outstanding = %d, want 600", got)
	}

	// Release is idempotent.
	h1.Release()
	h1.Release()
	if got := p.Stats().OutstandingBytes; got != 600 {
		t.Errorf("after double release: outstanding = %d, want 600", got)
	}

	h2.Release()
	if got := p.Stats().OutstandingBytes; got != 0 {
		t.Errorf("final outstanding = %d, want 0", got)
	}
}

func TestPoolRejectsOversizedAcquisition(t *testing.T) {
	p := NewPool(100)
	if _, err := p.Acquire(101); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("err = %v, want ErrOutOfMemory", err)
	}
	if _, err := p.Acquire(-1); err == nil {
		t.Error("negative acquisition accepted")
	}
}

func TestPoolPressure(t *testing.T) {
	p := NewPool(1000)
	h, _ := p.Acquire(800)
	if p.Pressure() {
		t.Error("pressure at exactly 80% should be false")
	}
	h2, _ := p.Acquire(1)
	if !p.Pressure() {
		t.Error("pressure above 80% should be true")
	}
	h.Release()
	h2.Release()
	if p.Pressure() {
		t.Error("pressure after release should be false")
	}
}

func TestPoolClose(t *testing.T) {
	p := NewPool(100)
	h, err := p.Acquire(50)
	if err != nil {
		t.Fatal(err)
	}
	p.Close()
	if _, err := p.Acquire(1); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("acquire after close: err = %v, want ErrManagerClosed", err)
	}
	// Outstanding handles still release cleanly.
	h.Release()
	if got := p.Stats().OutstandingBytes; got != 0 {
		t.Errorf("outstanding = %d, want 0", got)
	}
}

func TestPoolConcurrentChurn(t *testing.T) {
	p := NewPool(1 << 20)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h, err := p.Acquire(1024)
				if err != nil {
					continue
				}
				h.Release()
			}
		}()
	}
	wg.Wait()
	if got := p.Stats().OutstandingBytes; got != 0 {
		t.Errorf("outstanding after churn = %d, want 0", got)
	}
}

func TestManagerZeroGPUBudget(t *testing.T) {
	m := NewManager(1000, 0)
	if _, err := m.GPU.Acquire(1); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("GPU acquire with zero budget: err = %v, want ErrOutOfMemory", err)
	}
	if got := m.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
}
