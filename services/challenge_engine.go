// services/challenge_engine.go
package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"lub-reward-system/config"
	"lub-reward-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ErrChallengeNotActive is returned when completing an unknown or already
// terminal challenge id.
var ErrChallengeNotActive = errors.New("challenge not active")

// ErrCreationDenied wraps a ledger rejection of challenge creation.
type ErrCreationDenied struct {
	Decision *models.Decision
}

func (e *ErrCreationDenied) Error() string {
	return fmt.Sprintf("challenge creation denied (%s): %s", e.Decision.Action, strings.Join(e.Decision.Reasons, "; "))
}

// ChallengeEngine generates and resolves time-boxed social challenges from
// a static template catalog. Active challenges live in the challenges
// table; completion moves them to challenge_results; expiry discards them.
type ChallengeEngine struct {
	DB      *gorm.DB
	Cfg     *config.EngineSettings
	Ledger  *LedgerService
	catalog []models.ChallengeType
}

func NewChallengeEngine(db *gorm.DB, cfg *config.EngineSettings, ledger *LedgerService) (*ChallengeEngine, error) {
	catalog, err := LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	return &ChallengeEngine{DB: db, Cfg: cfg, Ledger: ledger, catalog: catalog}, nil
}

// Catalog exposes the loaded templates (read-only).
func (e *ChallengeEngine) Catalog() []models.ChallengeType {
	return e.catalog
}

// GenerateChallenge creates a live challenge against the target. When a
// creator is supplied, the ledger permission check and the activity record
// run under the creator's lock so concurrent generations cannot both pass
// a rate limit only one should.
func (e *ChallengeEngine) GenerateChallenge(target models.TargetActor, difficulty models.Difficulty, createdByFID string) (*models.Challenge, error) {
	if createdByFID == "" {
		return e.generate(target, difficulty, "")
	}

	var challenge *models.Challenge
	err := e.Ledger.WithActorLock(createdByFID, func() error {
		decision, err := e.Ledger.CanCreateChallenge(createdByFID, target.FID)
		if err != nil {
			return err
		}
		if !decision.Allowed() {
			return &ErrCreationDenied{Decision: decision}
		}
		challenge, err = e.generate(target, difficulty, createdByFID)
		if err != nil {
			return err
		}
		return e.Ledger.RecordActivity(createdByFID, models.ActivityEvent{
			Type:          models.ActivityChallengeCreated,
			ChallengeID:   challenge.ID,
			TargetFID:     target.FID,
			ChallengeType: challenge.TypeID,
		})
	})
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

func (e *ChallengeEngine) generate(target models.TargetActor, difficulty models.Difficulty, createdByFID string) (*models.Challenge, error) {
	tier := models.ClassifyTier(target.FollowerCount)
	multiplier := models.TierMultiplier(tier)

	tmpl := e.selectTemplate(target, difficulty, tier)
	prompt := e.renderPrompt(tmpl, target, difficulty, tier)

	now := time.Now()
	challenge := &models.Challenge{
		ID:              fmt.Sprintf("%s-%s", slug.Make(target.Username), uuid.NewString()[:8]),
		TypeID:          tmpl.ID,
		TargetFID:       target.FID,
		TargetUsername:  target.Username,
		TargetFollowers: target.FollowerCount,
		Difficulty:      difficulty,
		Prompt:          prompt,
		BaseReward:      tmpl.BaseReward,
		WhaleMultiplier: multiplier,
		TotalReward:     int(math.Floor(float64(tmpl.BaseReward) * multiplier)),
		Deadline:        now.Add(time.Duration(tmpl.TimeLimitMin) * time.Minute),
		SuccessCriteria: tmpl.SuccessCriteria,
		CreatedByFID:    createdByFID,
	}
	if err := e.DB.Create(challenge).Error; err != nil {
		return nil, err
	}
	log.Printf("🎯 [CHALLENGE] Generated %s (%s, %s) for @%s — reward %d, due %s",
		challenge.ID, tmpl.ID, difficulty, target.Username, challenge.TotalReward, challenge.Deadline.Format(time.RFC3339))
	return challenge, nil
}

// selectTemplate filters the catalog by follower band, difficulty reward
// band and whale eligibility, then picks uniformly at random. Falls back to
// the lowest-friction template when nothing matches.
func (e *ChallengeEngine) selectTemplate(target models.TargetActor, difficulty models.Difficulty, tier models.WhaleTier) models.ChallengeType {
	var candidates []models.ChallengeType
	for _, t := range e.catalog {
		if target.FollowerCount < t.MinFollowers {
			continue
		}
		if t.MaxFollowers > 0 && target.FollowerCount >= t.MaxFollowers {
			continue
		}
		if !rewardInBand(t.BaseReward, difficulty) {
			continue
		}
		if t.Category == models.CategoryWhaleSpecific && tier == models.TierNano {
			continue
		}
		candidates = append(candidates, t)
	}

	if len(candidates) == 0 {
		for _, t := range e.catalog {
			if t.ID == FallbackTemplateID {
				return t
			}
		}
		return e.catalog[0]
	}
	return candidates[rand.Intn(len(candidates))]
}

// rewardInBand maps the requested difficulty onto a base-reward band. The
// bands deliberately overlap at the edges.
func rewardInBand(baseReward int, difficulty models.Difficulty) bool {
	switch difficulty {
	case models.DifficultyEasy:
		return baseReward <= 100
	case models.DifficultyMedium:
		return baseReward > 100 && baseReward <= 500
	case models.DifficultyHard:
		return baseReward >= 300
	default:
		return false
	}
}

func (e *ChallengeEngine) renderPrompt(tmpl models.ChallengeType, target models.TargetActor, difficulty models.Difficulty, tier models.WhaleTier) string {
	example := tmpl.Examples[rand.Intn(len(tmpl.Examples))]
	if strings.Contains(example, "%s") {
		example = fmt.Sprintf(example, target.Username)
	}

	var b strings.Builder
	b.WriteString(example)
	b.WriteString(fmt.Sprintf("\n\nTarget: @%s (%d followers, %s tier)", target.Username, target.FollowerCount, tier))
	b.WriteString(fmt.Sprintf("\nDifficulty: %s — complete within %d minutes", difficulty, tmpl.TimeLimitMin))
	b.WriteString("\nSuccess criteria:")
	for _, c := range tmpl.SuccessCriteria {
		b.WriteString("\n  • " + c)
	}
	b.WriteString("\nTip: " + strategyTip(tmpl.Category, tier))
	return b.String()
}

// CompleteChallenge resolves an active challenge into a terminal result.
// Challenges are single-attempt: the row leaves the active set whether or
// not the attempt succeeded. On success the payout accrues additively —
// base, then whale bonus, then viral bonus on the running total, then
// speed bonus on the running total.
func (e *ChallengeEngine) CompleteChallenge(challengeID string, success bool, evidence string, viralDetected bool) (*models.ChallengeResult, error) {
	var result *models.ChallengeResult
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var ch models.Challenge
		if err := tx.Where("id = ?", challengeID).First(&ch).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrChallengeNotActive, challengeID)
			}
			return err
		}

		now := time.Now()
		result = &models.ChallengeResult{
			ID:           uuid.NewString(),
			ChallengeID:  ch.ID,
			TypeID:       ch.TypeID,
			TargetFID:    ch.TargetFID,
			CreatedByFID: ch.CreatedByFID,
			Success:      success,
			Evidence:     evidence,
			CompletedAt:  now,
		}

		if success {
			total := ch.BaseReward
			result.BaseReward = ch.BaseReward
			if ch.WhaleMultiplier > 1 {
				result.WhaleBonus = int(math.Floor(float64(ch.BaseReward) * (ch.WhaleMultiplier - 1)))
				total += result.WhaleBonus
			}
			if viralDetected {
				result.ViralBonus = int(math.Floor(float64(total) * 0.25))
				total += result.ViralBonus
			}
			elapsed := now.Sub(ch.CreatedAt)
			if window := ch.TimeLimit(); window > 0 && elapsed <= window/4 {
				result.SpeedBonus = int(math.Floor(float64(total) * 0.5))
				total += result.SpeedBonus
			}
			result.ActualReward = total
		}

		if err := tx.Delete(&ch).Error; err != nil {
			return err
		}
		return tx.Create(result).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏁 [CHALLENGE] Completed %s — success=%t reward=%d", challengeID, success, result.ActualReward)
	return result, nil
}

// CleanupExpiredChallenges removes every active challenge whose deadline
// has passed. Expiry is silent abandonment: no payout, no history entry.
func (e *ChallengeEngine) CleanupExpiredChallenges() (int64, error) {
	res := e.DB.Where("deadline < ?", time.Now()).Delete(&models.Challenge{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 [CHALLENGE] Swept %d expired challenge(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// GetActiveChallenge fetches one live challenge.
func (e *ChallengeEngine) GetActiveChallenge(challengeID string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := e.DB.Where("id = ?", challengeID).First(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListActiveChallenges returns live challenges, optionally for one creator.
func (e *ChallengeEngine) ListActiveChallenges(createdByFID string) ([]models.Challenge, error) {
	q := e.DB.Order("deadline ASC")
	if createdByFID != "" {
		q = q.Where("created_by_fid = ?", createdByFID)
	}
	var challenges []models.Challenge
	err := q.Find(&challenges).Error
	return challenges, err
}

// ListResults returns completed-challenge history, newest first.
func (e *ChallengeEngine) ListResults(createdByFID string, limit int) ([]models.ChallengeResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := e.DB.Order("completed_at DESC").Limit(limit)
	if createdByFID != "" {
		q = q.Where("created_by_fid = ?", createdByFID)
	}
	var results []models.ChallengeResult
	err := q.Find(&results).Error
	return results, err
}
