package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("kochi")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if l.Len() != 0 {
		t.Errorf("Len after release = %d, want 0", l.Len())
	}
}

func TestLockIndependentKeys(t *testing.T) {
	l := New()
	unlockA := l.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()
	<-done

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
	unlockA()
}
