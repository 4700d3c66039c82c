package jobs

import (
	"log"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/escalation"
)

// EscalationJob fires due escalation levels. The scheduler recomputes every
// next-fire time from persisted state, so a restart between ticks loses
// nothing.
type EscalationJob struct {
	scheduler *escalation.Scheduler
}

// NewEscalationJob creates an escalation job
func NewEscalationJob(scheduler *escalation.Scheduler) *EscalationJob {
	return &EscalationJob{scheduler: scheduler}
}

// Run executes one iteration and returns the number of levels fired
func (j *EscalationJob) Run(now time.Time) (int, error) {
	return j.scheduler.RunDue(now)
}

// Start begins the periodic escalation scan
func (j *EscalationJob) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fired, err := j.Run(time.Now())
			if err != nil {
				log.Printf("Escalation job error: %v", err)
			} else if fired > 0 {
				log.Printf("Escalation job: fired %d levels", fired)
			}
		case <-stop:
			log.Println("Escalation job stopped")
			return
		}
	}
}
