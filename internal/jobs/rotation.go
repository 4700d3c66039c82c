package jobs

import (
	"log"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"gorm.io/gorm"
)

// RotationJob advances on-call schedules whose rotation interval has elapsed
type RotationJob struct {
	db         *gorm.DB
	oncall     *escalation.OnCall
	partitions *engine.Partitions
}

// NewRotationJob creates a rotation job
func NewRotationJob(db *gorm.DB, oncall *escalation.OnCall, partitions *engine.Partitions) *RotationJob {
	return &RotationJob{db: db, oncall: oncall, partitions: partitions}
}

// Run executes one iteration and returns the number of schedules rotated
func (j *RotationJob) Run(now time.Time) (int, error) {
	var schedules []database.OnCallSchedule
	if err := j.db.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return 0, err
	}

	rotated := 0
	for i := range schedules {
		schedule := &schedules[i]
		if !j.oncall.DueForRotation(schedule, now) {
			continue
		}
		advanced, err := j.rotate(schedule, now)
		if err != nil {
			log.Printf("Rotation job: failed to rotate schedule %q: %v", schedule.Name, err)
			continue
		}
		if !advanced {
			continue
		}
		rotated++
		log.Printf("Rotation job: schedule %q rotated to member %d", schedule.Name, schedule.CurrentOnCallIndex)
	}
	return rotated, nil
}

// rotate advances one schedule under its organization partition lock. The
// rotation index is partition-owned state, so the schedule is re-read and
// re-checked once the lock is held: a manual rotation through the API may
// have advanced it while this job was waiting.
func (j *RotationJob) rotate(schedule *database.OnCallSchedule, now time.Time) (bool, error) {
	unlock := j.partitions.Lock(schedule.OrganizationID)
	defer unlock()

	if err := j.db.First(schedule, schedule.ID).Error; err != nil {
		return false, err
	}
	if !j.oncall.DueForRotation(schedule, now) {
		return false, nil
	}
	if err := j.oncall.Rotate(schedule, now); err != nil {
		return false, err
	}
	return true, nil
}

// Start begins the periodic rotation check
func (j *RotationJob) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rotated, err := j.Run(time.Now())
			if err != nil {
				log.Printf("Rotation job error: %v", err)
			} else if rotated > 0 {
				log.Printf("Rotation job: rotated %d schedules", rotated)
			}
		case <-stop:
			log.Println("Rotation job stopped")
			return
		}
	}
}
