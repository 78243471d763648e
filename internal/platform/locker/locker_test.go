package locker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := SlotKey("m1", "2025-01-20", "09:00")

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Error("expected second lock to fail while held")
	}
	if err := l.Unlock(ctx, key, "someone-else"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := l.Unlock(ctx, key, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); !ok {
		t.Error("expected lock to be free after unlock")
	}
}

func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if _, ok, _ := l.TryLock(ctx, "k", time.Second); !ok {
		t.Fatal("expected lock")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := l.TryLock(ctx, "k", time.Second); !ok {
		t.Error("expected expired lock to be taken over")
	}
}

func TestMemoryLocker_ConcurrentSingleWinner(t *testing.T) {
	l := NewMemoryLocker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.TryLock(context.Background(), "slot", time.Minute); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestSlotKey(t *testing.T) {
	if got := SlotKey("m1", "2025-01-20", "09:00"); got != "lock:cita:m1:2025-01-20:09:00" {
		t.Errorf("unexpected key %s", got)
	}
}
