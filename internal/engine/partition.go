package engine

import "sync"

// Partitions serializes mutation per organization. Alerts for different
// organizations never interact, so one lock per organization id is the whole
// concurrency story: the pipeline and every lifecycle operation take the
// partition lock, background jobs take it only while mutating state.
type Partitions struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewPartitions creates an empty partition map
func NewPartitions() *Partitions {
	return &Partitions{locks: make(map[uint]*sync.Mutex)}
}

// Get returns the lock for an organization, creating it on first use
func (p *Partitions) Get(orgID uint) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[orgID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[orgID] = lock
	}
	return lock
}

// Lock locks the organization's partition and returns the unlock function
func (p *Partitions) Lock(orgID uint) func() {
	lock := p.Get(orgID)
	lock.Lock()
	return lock.Unlock
}
