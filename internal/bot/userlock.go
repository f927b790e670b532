package bot

import "sync"

// userLocks serializes work per user. A user's turns and scheduled
// touches run one at a time; different users never contend.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for a user, creating it on first use, and
// returns the unlock func.
func (ul *userLocks) Lock(userID int64) func() {
	ul.mu.Lock()
	lock, ok := ul.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		ul.locks[userID] = lock
	}
	ul.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
