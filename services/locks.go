package services

import "sync"

// actorLocks serializes check-then-record sequences per actor FID so two
// concurrent requests cannot both pass a rate-limit check only one should.
type actorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newActorLocks() *actorLocks {
	return &actorLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *actorLocks) get(fid string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[fid]
	if !ok {
		m = &sync.Mutex{}
		l.locks[fid] = m
	}
	return m
}

// WithActor runs fn while holding the actor's lock.
func (l *actorLocks) WithActor(fid string, fn func() error) error {
	m := l.get(fid)
	m.Lock()
	defer m.Unlock()
	return fn()
}
