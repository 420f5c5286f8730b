package relay

import "sync"

// userLocks hands out one mutex per user id. Entries are dropped once no
// goroutine holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[int]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int]*userLock)}
}

// lock blocks until the caller owns userID and returns the release func.
func (l *userLocks) lock(userID int) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
