package jobs

import (
	"log"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/engine"
)

// RateLimitSweepJob flushes pending aggregate buffers for organizations
// that went quiet before their buffer reached the aggregate threshold, and
// expires stale deduplication history along the way.
type RateLimitSweepJob struct {
	engine *engine.Engine
}

// NewRateLimitSweepJob creates a rate-limit sweep job
func NewRateLimitSweepJob(eng *engine.Engine) *RateLimitSweepJob {
	return &RateLimitSweepJob{engine: eng}
}

// Run executes one sweep and returns the number of summaries flushed
func (j *RateLimitSweepJob) Run(now time.Time) int {
	return j.engine.SweepRateLimits(now)
}

// Start begins the periodic sweep
func (j *RateLimitSweepJob) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if flushed := j.Run(time.Now()); flushed > 0 {
				log.Printf("Rate limit sweep: flushed %d summaries", flushed)
			}
		case <-stop:
			log.Println("Rate limit sweep stopped")
			return
		}
	}
}
