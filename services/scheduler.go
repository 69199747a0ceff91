// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartCleanupScheduler runs the periodic maintenance passes: ledger
// pruning, detection-store capping and the expired-challenge sweep.
// Cleanup passes take no per-actor locks; the database transactions keep
// them safe against concurrent mutations.
func StartCleanupScheduler(ledger *LedgerService, detector *ViralDetectorService, engine *ChallengeEngine) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	// Every minute: sweep expired challenges
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if _, err := engine.CleanupExpiredChallenges(); err != nil {
				log.Printf("[Scheduler] Expired-challenge sweep failed: %v", err)
			}
		}),
	); err != nil {
		return nil, err
	}

	// Every 15 minutes: ledger retention pass
	if _, err := sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			if err := ledger.Cleanup(); err != nil {
				log.Printf("[Scheduler] Ledger cleanup failed: %v", err)
			}
		}),
	); err != nil {
		return nil, err
	}

	// Hourly: cap the detection store
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := detector.Cleanup(); err != nil {
				log.Printf("[Scheduler] Detection cleanup failed: %v", err)
			}
		}),
	); err != nil {
		return nil, err
	}

	return sched, nil
}
