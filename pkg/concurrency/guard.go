package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("another call is already in progress")

// ConcurrencyGuard serializes long-running tasks: while one executes, any
// other attempt is rejected with ErrBusy instead of queued. The call apps
// use it to enforce at most one active call per client.
type ConcurrencyGuard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{}
}

// Execute runs task if the guard is free, holding it busy for the task's
// whole duration.
func (g *ConcurrencyGuard) Execute(task func() error) error {
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		return ErrBusy
	}
	g.isBusy = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.mu.Unlock()
	}()
	return task()
}

// Busy reports whether a task currently holds the guard.
func (g *ConcurrencyGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}
