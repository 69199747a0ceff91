// services/ledger.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"lub-reward-system/config"
	"lub-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrReportCooldown is returned when a reporter files again too quickly.
var ErrReportCooldown = errors.New("report cooldown active")

// ErrReporterBanned is returned when a banned actor tries to file a report.
var ErrReporterBanned = errors.New("reporter is banned")

// LedgerService is the single authority on whether an actor may perform a
// rate-limited action and on content-quality screening. All durable state
// lives in the database; the keyed locks serialize check-then-record pairs
// per actor.
type LedgerService struct {
	DB    *gorm.DB
	Cfg   *config.EngineSettings
	locks *actorLocks
}

func NewLedgerService(db *gorm.DB, cfg *config.EngineSettings) *LedgerService {
	return &LedgerService{DB: db, Cfg: cfg, locks: newActorLocks()}
}

// WithActorLock serializes fn against other locked operations on the same
// actor. Used by the challenge engine and viral detector to make their
// "check permission, then record" sequences atomic per actor.
func (s *LedgerService) WithActorLock(fid string, fn func() error) error {
	return s.locks.WithActor(fid, fn)
}

// EnsureActor loads or creates the actor record inside tx (idempotent).
func (s *LedgerService) EnsureActor(tx *gorm.DB, fid string) (*models.ActorRecord, error) {
	var actor models.ActorRecord
	err := tx.Where("fid = ?", fid).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		actor = models.ActorRecord{
			FID:             fid,
			ReputationScore: models.StartingReputation,
		}
		if err := tx.Create(&actor).Error; err != nil {
			return nil, err
		}
		return &actor, nil
	}
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

// CanCreateChallenge evaluates the challenge-creation policy for an actor.
// Checks run in order and short-circuit on the first failure. Pure read —
// no side effects on the ledger.
func (s *LedgerService) CanCreateChallenge(creatorFID, targetFID string) (*models.Decision, error) {
	now := time.Now()

	var actor models.ActorRecord
	err := s.DB.Where("fid = ?", creatorFID).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Fresh actor: nothing on record, nothing to deny.
		return &models.Decision{Action: models.ActionAllow}, nil
	}
	if err != nil {
		return nil, err
	}

	if actor.IsBanned(now) {
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    100,
			Reasons:       []string{"actor is banned"},
			CooldownUntil: actor.BannedUntil,
			IsSpam:        true,
		}, nil
	}

	if actor.ReputationScore < s.Cfg.ReviewReputation {
		return &models.Decision{
			Action:     models.ActionReview,
			Confidence: 80,
			Reasons:    []string{fmt.Sprintf("reputation %d below review threshold %d", actor.ReputationScore, s.Cfg.ReviewReputation)},
		}, nil
	}

	hourly, err := s.countActivity(creatorFID, models.ActivityChallengeCreated, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if hourly >= int64(s.Cfg.MaxChallengesPerHour) {
		until := now.Add(time.Hour)
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    90,
			Reasons:       []string{fmt.Sprintf("hourly challenge limit reached (%d)", s.Cfg.MaxChallengesPerHour)},
			CooldownUntil: &until,
			IsSpam:        true,
		}, nil
	}

	daily, err := s.countActivity(creatorFID, models.ActivityChallengeCreated, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if daily >= int64(s.Cfg.MaxChallengesPerDay) {
		until := now.Add(24 * time.Hour)
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    90,
			Reasons:       []string{fmt.Sprintf("daily challenge limit reached (%d)", s.Cfg.MaxChallengesPerDay)},
			CooldownUntil: &until,
			IsSpam:        true,
		}, nil
	}

	if actor.LastChallengeAt != nil && now.Sub(*actor.LastChallengeAt) < s.Cfg.ChallengeCooldown {
		until := actor.LastChallengeAt.Add(s.Cfg.ChallengeCooldown)
		return &models.Decision{
			Action:        models.ActionWarn,
			Confidence:    60,
			Reasons:       []string{"challenge cooldown active"},
			CooldownUntil: &until,
		}, nil
	}

	return &models.Decision{Action: models.ActionAllow}, nil
}

// CanDetectViral is the rate check specific to viral detections: one
// detection per cooldown window, capped per trailing 24 hours.
func (s *LedgerService) CanDetectViral(fid string) (*models.Decision, error) {
	now := time.Now()

	var actor models.ActorRecord
	err := s.DB.Where("fid = ?", fid).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Decision{Action: models.ActionAllow}, nil
	}
	if err != nil {
		return nil, err
	}

	if actor.IsBanned(now) {
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    100,
			Reasons:       []string{"actor is banned"},
			CooldownUntil: actor.BannedUntil,
			IsSpam:        true,
		}, nil
	}

	if actor.LastViralDetectionAt != nil && now.Sub(*actor.LastViralDetectionAt) < s.Cfg.DetectionCooldown {
		until := actor.LastViralDetectionAt.Add(s.Cfg.DetectionCooldown)
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    85,
			Reasons:       []string{"detection cooldown active"},
			CooldownUntil: &until,
		}, nil
	}

	daily, err := s.countActivity(fid, models.ActivityViralDetected, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if daily >= int64(s.Cfg.MaxDetectionsPerDay) {
		until := now.Add(24 * time.Hour)
		return &models.Decision{
			Action:        models.ActionBlock,
			Confidence:    85,
			Reasons:       []string{fmt.Sprintf("daily detection limit reached (%d)", s.Cfg.MaxDetectionsPerDay)},
			CooldownUntil: &until,
		}, nil
	}

	return &models.Decision{Action: models.ActionAllow}, nil
}

// ValidateContentQuality scores text for spam signals. Signals are additive
// and the total is capped at 100.
func (s *LedgerService) ValidateContentQuality(content, fid string) (*models.Decision, error) {
	confidence := 0
	var reasons []string

	runes := []rune(content)
	if len(runes) < s.Cfg.MinContentLen {
		confidence += 30
		reasons = append(reasons, "content too short")
	} else if len(runes) > s.Cfg.MaxContentLen {
		confidence += 20
		reasons = append(reasons, "content too long")
	}

	if runScore := repeatedRunScore(runes); runScore > 0 {
		confidence += runScore
		reasons = append(reasons, "repeated character runs")
	}

	if upper, letters := capsCount(runes); letters > 0 && float64(upper)/float64(letters) > 0.7 {
		confidence += 25
		reasons = append(reasons, "excessive capitalization")
	}

	lowered := strings.ToLower(content)
	for _, kw := range s.Cfg.SpamKeywords {
		if strings.Contains(lowered, kw) {
			confidence += 20
			reasons = append(reasons, fmt.Sprintf("spam keyword %q", kw))
		}
	}

	var actor models.ActorRecord
	err := s.DB.Where("fid = ?", fid).First(&actor).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	reputation := models.StartingReputation
	if err == nil {
		reputation = actor.ReputationScore
	}
	if reputation < 70 {
		penalty := int(float64(70-reputation) * 0.5)
		if penalty > 15 {
			penalty = 15
		}
		confidence += penalty
		reasons = append(reasons, "low reputation")
	}

	if confidence > 100 {
		confidence = 100
	}

	action := models.ActionAllow
	switch {
	case confidence >= 80:
		action = models.ActionBlock
	case confidence >= 60:
		action = models.ActionReview
	case confidence >= 40:
		action = models.ActionWarn
	}

	return &models.Decision{
		Action:     action,
		Confidence: confidence,
		Reasons:    reasons,
		IsSpam:     confidence >= 40,
	}, nil
}

// repeatedRunScore scores runs of a repeated character. Each full window of
// five identical characters contributes 40, so a run of 10 scores 80.
func repeatedRunScore(runes []rune) int {
	score := 0
	runLen := 1
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && runes[i] == runes[i-1] {
			runLen++
			continue
		}
		if runLen > 4 {
			score += 40 * (runLen / 5)
		}
		runLen = 1
	}
	return score
}

func capsCount(runes []rune) (upper, letters int) {
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return upper, letters
}

// RecordActivity appends a typed event to the actor's history, bumps the
// matching counter and cooldown anchor, and applies the warning penalty.
// Callers own idempotence of event ids; there is no dedup here.
func (s *LedgerService) RecordActivity(fid string, event models.ActivityEvent) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		actor, err := s.EnsureActor(tx, fid)
		if err != nil {
			return err
		}

		event.ActorFID = fid
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now()
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		now := event.OccurredAt
		switch event.Type {
		case models.ActivityChallengeCreated:
			actor.ChallengesCreated++
			actor.LastChallengeAt = &now
		case models.ActivityViralDetected:
			actor.ViralDetections++
			actor.LastViralDetectionAt = &now
		case models.ActivityReportFiled:
			actor.ReportsFiled++
			actor.LastReportAt = &now
		case models.ActivityWarningIssued:
			actor.WarningsReceived++
			actor.ReputationScore = models.ClampReputation(actor.ReputationScore - models.WarningReputationPenalty)
		default:
			return fmt.Errorf("unknown activity type %q", event.Type)
		}

		if err := tx.Save(actor).Error; err != nil {
			return err
		}

		return s.truncateHistory(tx, fid)
	})
}

// truncateHistory keeps only the most recent MaxActivityHistory events.
func (s *LedgerService) truncateHistory(tx *gorm.DB, fid string) error {
	keep := tx.Model(&models.ActivityEvent{}).
		Select("id").
		Where("actor_fid = ?", fid).
		Order("occurred_at DESC").
		Limit(models.MaxActivityHistory)
	return tx.Where("actor_fid = ? AND id NOT IN (?)", fid, keep).
		Delete(&models.ActivityEvent{}).Error
}

// SubmitReport files a community report. A banned reporter is rejected with
// ErrReporterBanned, one on cooldown with ErrReportCooldown. When the
// target's pending reports reach the auto-ban threshold, a 24-hour ban and
// reputation penalty are applied once.
func (s *LedgerService) SubmitReport(reporterFID, targetFID string, category models.ReportCategory, description, evidence, evidenceURL string) (*models.CommunityReport, error) {
	var report *models.CommunityReport
	err := s.locks.WithActor(reporterFID, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			reporter, err := s.EnsureActor(tx, reporterFID)
			if err != nil {
				return err
			}

			now := time.Now()
			if reporter.IsBanned(now) {
				return fmt.Errorf("%w: until %s", ErrReporterBanned, reporter.BannedUntil.Format(time.RFC3339))
			}
			if reporter.LastReportAt != nil && now.Sub(*reporter.LastReportAt) < s.Cfg.ReportCooldown {
				until := reporter.LastReportAt.Add(s.Cfg.ReportCooldown)
				return fmt.Errorf("%w: retry after %s", ErrReportCooldown, until.Format(time.RFC3339))
			}

			report = &models.CommunityReport{
				ID:          uuid.NewString(),
				ReporterFID: reporterFID,
				TargetFID:   targetFID,
				Category:    category,
				Description: description,
				Evidence:    evidence,
				EvidenceURL: evidenceURL,
				Status:      models.ReportStatusPending,
			}
			if err := tx.Create(report).Error; err != nil {
				return err
			}

			event := models.ActivityEvent{
				ID:         uuid.NewString(),
				ActorFID:   reporterFID,
				Type:       models.ActivityReportFiled,
				ReportID:   report.ID,
				TargetFID:  targetFID,
				OccurredAt: now,
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}
			reporter.ReportsFiled++
			reporter.LastReportAt = &now
			if err := tx.Save(reporter).Error; err != nil {
				return err
			}
			if err := s.truncateHistory(tx, reporterFID); err != nil {
				return err
			}

			return s.maybeAutoBan(tx, targetFID, now)
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// maybeAutoBan applies the automatic ban exactly when the pending-report
// count reaches the threshold, so the report after that does not re-ban.
func (s *LedgerService) maybeAutoBan(tx *gorm.DB, targetFID string, now time.Time) error {
	var pending int64
	if err := tx.Model(&models.CommunityReport{}).
		Where("target_fid = ? AND status = ?", targetFID, models.ReportStatusPending).
		Count(&pending).Error; err != nil {
		return err
	}
	if pending != int64(s.Cfg.AutoBanReportThreshold) {
		return nil
	}

	target, err := s.EnsureActor(tx, targetFID)
	if err != nil {
		return err
	}
	until := now.Add(s.Cfg.AutoBanDuration)
	target.BannedUntil = &until
	target.ReputationScore = models.ClampReputation(target.ReputationScore - models.AutoActionReputationPenalty)
	if err := tx.Save(target).Error; err != nil {
		return err
	}
	log.Printf("🚫 [LEDGER] Auto-banned %s until %s (%d pending reports)", targetFID, until.Format(time.RFC3339), pending)
	return nil
}

// ResolveReport moves a report to a terminal moderation status.
func (s *LedgerService) ResolveReport(reportID string, status models.ReportStatus) (*models.CommunityReport, error) {
	if status != models.ReportStatusReviewed && status != models.ReportStatusResolved && status != models.ReportStatusDismissed {
		return nil, fmt.Errorf("invalid report status %q", status)
	}
	var report models.CommunityReport
	if err := s.DB.Where("id = ?", reportID).First(&report).Error; err != nil {
		return nil, err
	}
	report.Status = status
	if status == models.ReportStatusResolved || status == models.ReportStatusDismissed {
		now := time.Now()
		report.ResolvedAt = &now
	}
	if err := s.DB.Save(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// GetUserStats returns the read-only aggregate view of one actor.
func (s *LedgerService) GetUserStats(fid string) (*models.UserStats, error) {
	var actor models.ActorRecord
	err := s.DB.Where("fid = ?", fid).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserStats{FID: fid, ReputationScore: models.StartingReputation}, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stats := &models.UserStats{
		FID:               actor.FID,
		ReputationScore:   actor.ReputationScore,
		ChallengesCreated: actor.ChallengesCreated,
		ViralDetections:   actor.ViralDetections,
		ReportsFiled:      actor.ReportsFiled,
		WarningsReceived:  actor.WarningsReceived,
		Banned:            actor.IsBanned(now),
		BannedUntil:       actor.BannedUntil,
	}
	stats.NextChallengeAt = nextAllowed(actor.LastChallengeAt, s.Cfg.ChallengeCooldown, now)
	stats.NextReportAt = nextAllowed(actor.LastReportAt, s.Cfg.ReportCooldown, now)
	stats.NextDetectionAt = nextAllowed(actor.LastViralDetectionAt, s.Cfg.DetectionCooldown, now)
	return stats, nil
}

func nextAllowed(last *time.Time, cooldown time.Duration, now time.Time) *time.Time {
	if last == nil {
		return nil
	}
	next := last.Add(cooldown)
	if next.Before(now) {
		return nil
	}
	return &next
}

// Cleanup prunes old activity, clears expired bans, evicts idle actors and
// drops terminal reports past retention. Runs on the gocron schedule.
func (s *LedgerService) Cleanup() error {
	now := time.Now()

	if err := s.DB.Where("occurred_at < ?", now.Add(-s.Cfg.ActivityRetention)).
		Delete(&models.ActivityEvent{}).Error; err != nil {
		return fmt.Errorf("prune activity events: %w", err)
	}

	if err := s.DB.Model(&models.ActorRecord{}).
		Where("banned_until IS NOT NULL AND banned_until < ?", now).
		Update("banned_until", nil).Error; err != nil {
		return fmt.Errorf("clear expired bans: %w", err)
	}

	// Eviction must free the fid primary key so a returning actor can be
	// re-created fresh; a soft delete would leave a colliding tombstone.
	if err := s.DB.Unscoped().Where("updated_at < ?", now.Add(-s.Cfg.ActorIdleEviction)).
		Delete(&models.ActorRecord{}).Error; err != nil {
		return fmt.Errorf("evict idle actors: %w", err)
	}

	if err := s.DB.Unscoped().Where("status IN ? AND resolved_at < ?",
		[]models.ReportStatus{models.ReportStatusResolved, models.ReportStatusDismissed},
		now.Add(-s.Cfg.ReportRetention)).
		Delete(&models.CommunityReport{}).Error; err != nil {
		return fmt.Errorf("prune resolved reports: %w", err)
	}

	return nil
}

func (s *LedgerService) countActivity(fid string, t models.ActivityType, since time.Time) (int64, error) {
	var count int64
	err := s.DB.Model(&models.ActivityEvent{}).
		Where("actor_fid = ? AND type = ? AND occurred_at >= ?", fid, t, since).
		Count(&count).Error
	return count, err
}
