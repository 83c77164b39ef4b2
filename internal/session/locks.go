package session

import (
	"context"
	"sync"
)

// threadLocks serialises work per thread id. Each lock is a one-slot
// semaphore so waiters can give up when their context ends; entries are
// reference counted and dropped when nobody holds or waits on them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: map[string]*threadLock{}}
}

// acquire blocks until the thread's lock is held or ctx is done.
func (l *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{sem: make(chan struct{}, 1)}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-tl.sem
				l.drop(threadID, tl)
			})
		}, nil
	case <-ctx.Done():
		l.drop(threadID, tl)
		return nil, ctx.Err()
	}
}

func (l *threadLocks) drop(threadID string, tl *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
