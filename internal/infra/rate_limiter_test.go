package infra

import (
	"testing"
	"time"
)

func TestTryAcquireBurst(t *testing.T) {
	rl := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("token %d not available within burst", i)
		}
	}
	if rl.TryAcquire() {
		t.Error("token acquired beyond burst")
	}
}

func TestRefill(t *testing.T) {
	rl := NewRateLimiter(1, 100) // refills every 10ms

	if !rl.TryAcquire() {
		t.Fatal("initial token not available")
	}
	if rl.TryAcquire() {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Error("token not refilled")
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	rl := NewRateLimiter(1, 50) // one token every 20ms
	rl.Wait()

	start := time.Now()
	rl.Wait()
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected it to block", elapsed)
	}
}
