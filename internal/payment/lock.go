package payment

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes work on one order across goroutines or processes.
// TryLock does not wait; a held key returns (false, nil).
type Locker interface {
	TryLock(ctx context.Context, key, owner string) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("promo_lock:%d", orderID)
}

// MemoryLocker is the in-process Locker used when Redis is not configured.
type MemoryLocker struct {
	mu    sync.Mutex
	owned map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{owned: make(map[string]string)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owned[key]; held {
		return false, nil
	}
	l.owned[key] = owner
	return true, nil
}

// Unlock releases key only if owner still holds it.
func (l *MemoryLocker) Unlock(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owned[key] == owner {
		delete(l.owned, key)
	}
	return nil
}
