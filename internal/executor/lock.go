package executor

import "sync"

// envLocks provides fail-fast exclusive locks at environment granularity.
// There is no queuing: a held lock rejects contenders immediately so rollout
// serialization stays observable to callers.
type envLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newEnvLocks() *envLocks {
	return &envLocks{held: make(map[string]bool)}
}

// tryAcquire attempts to take the environment's lock without blocking.
func (l *envLocks) tryAcquire(environment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[environment] {
		return false
	}
	l.held[environment] = true
	return true
}

// release frees the environment's lock.
func (l *envLocks) release(environment string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, environment)
}
