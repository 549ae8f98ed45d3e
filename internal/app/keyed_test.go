package app

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	var km keyedMutex[int]
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(1)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("counter = %d", counter)
	}
	km.mu.Lock()
	left := len(km.locks)
	km.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d lock entries leaked", left)
	}
}
