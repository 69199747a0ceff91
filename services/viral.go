// services/viral.go
package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode"

	"lub-reward-system/config"
	"lub-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommunityVerifier supplies the community half of detection verification.
// The production implementation is a neutral constant until community
// voting ships; the interface is the extension point.
type CommunityVerifier interface {
	Score(detection *models.ViralDetection) int
}

// StaticCommunityVerifier returns a fixed neutral score.
type StaticCommunityVerifier struct {
	Value int
}

func (v StaticCommunityVerifier) Score(*models.ViralDetection) int {
	return v.Value
}

// DetectionStats is the read-only aggregate over the detection store.
type DetectionStats struct {
	TotalDetections    int64              `json:"total_detections"`
	VerifiedDetections int64              `json:"verified_detections"`
	TotalRewards       int64              `json:"total_rewards"`
	AvgConfidence      float64            `json:"avg_confidence"`
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry ranks verified detections by reward.
type LeaderboardEntry struct {
	TargetFID      string `json:"target_fid"`
	TargetUsername string `json:"target_username"`
	Reward         int    `json:"reward"`
	Type           string `json:"type"`
}

// ViralDetectorService turns candidate posts into scored, rewarded
// detections, gated by the ledger.
type ViralDetectorService struct {
	DB       *gorm.DB
	Cfg      *config.EngineSettings
	Ledger   *LedgerService
	Verifier CommunityVerifier
}

func NewViralDetectorService(db *gorm.DB, cfg *config.EngineSettings, ledger *LedgerService, verifier CommunityVerifier) *ViralDetectorService {
	if verifier == nil {
		verifier = StaticCommunityVerifier{Value: 50}
	}
	return &ViralDetectorService{DB: db, Cfg: cfg, Ledger: ledger, Verifier: verifier}
}

// DetectViralMention scores a candidate post. Returns (nil, nil) when the
// post is rejected by policy or scores below the detection floor — policy
// rejections are values, not errors. The content check, rate check and
// activity record run under the poster's lock.
func (s *ViralDetectorService) DetectViralMention(challengeID string, target models.TargetActor, content string, engagement *models.EngagementMetrics) (*models.ViralDetection, error) {
	var detection *models.ViralDetection
	err := s.Ledger.WithActorLock(target.FID, func() error {
		quality, err := s.Ledger.ValidateContentQuality(content, target.FID)
		if err != nil {
			return err
		}
		if quality.IsSpam {
			log.Printf("🛑 [VIRAL] Rejected post from %s as spam (confidence %d)", target.FID, quality.Confidence)
			return nil
		}

		rate, err := s.Ledger.CanDetectViral(target.FID)
		if err != nil {
			return err
		}
		if !rate.Allowed() {
			log.Printf("🛑 [VIRAL] Rate-limited detection for %s: %s", target.FID, strings.Join(rate.Reasons, "; "))
			return nil
		}

		confidence, dtype := s.scoreContent(content)
		if confidence < 30 {
			return nil
		}

		reward, whaleBonus, engagementBonus := s.computeReward(confidence, dtype, target.FollowerCount, engagement)

		detection = &models.ViralDetection{
			ID:                 uuid.NewString(),
			ChallengeID:        challengeID,
			TargetFID:          target.FID,
			TargetUsername:     target.Username,
			TargetFollowers:    target.FollowerCount,
			DetectedAt:         time.Now(),
			Content:            content,
			Type:               dtype,
			Confidence:         confidence,
			Reward:             reward,
			WhaleBonus:         whaleBonus,
			EngagementBonus:    engagementBonus,
			DistributionStatus: models.DistributionNone,
		}
		if err := s.DB.Create(detection).Error; err != nil {
			return err
		}

		return s.Ledger.RecordActivity(target.FID, models.ActivityEvent{
			Type:        models.ActivityViralDetected,
			DetectionID: detection.ID,
			Confidence:  confidence,
		})
	})
	if err != nil {
		return nil, err
	}
	return detection, nil
}

// scoreContent pattern-matches the two signal families plus the softer
// sentiment and emoji signals. Token mentions dominate the type.
func (s *ViralDetectorService) scoreContent(content string) (int, models.DetectionType) {
	lowered := strings.ToLower(content)
	confidence := 0
	dtype := models.DetectionOrganicShare

	for _, kw := range s.Cfg.LubKeywords {
		if strings.Contains(lowered, kw) {
			confidence += 40
			dtype = models.DetectionLubMention
			break
		}
	}

	for _, kw := range s.Cfg.ChallengeKeywords {
		if strings.Contains(lowered, kw) {
			confidence += 30
			if dtype != models.DetectionLubMention {
				dtype = models.DetectionChallengeReference
			}
			break
		}
	}

	for _, w := range s.Cfg.PositiveWords {
		if strings.Contains(lowered, w) {
			confidence += 5
		}
	}

	emojiScore := 3 * countEmoji(content)
	if emojiScore > 15 {
		emojiScore = 15
	}
	confidence += emojiScore

	if confidence > 100 {
		confidence = 100
	}
	return confidence, dtype
}

func countEmoji(content string) int {
	count := 0
	for _, r := range content {
		if (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF) || unicode.Is(unicode.So, r) {
			count++
		}
	}
	return count
}

// computeReward applies the type multiplier and confidence weighting, then
// the whale and engagement bonuses. Final reward is floored to an integer.
func (s *ViralDetectorService) computeReward(confidence int, dtype models.DetectionType, followers int, engagement *models.EngagementMetrics) (reward, whaleBonus, engagementBonus int) {
	multiplier := 1.0
	switch dtype {
	case models.DetectionLubMention:
		multiplier = 2.0
	case models.DetectionChallengeReference:
		multiplier = 1.5
	}

	base := float64(s.Cfg.ViralBaseReward) * multiplier * (float64(confidence) / 100)

	whale := 0.0
	if followers >= s.Cfg.WhaleFollowerFloor {
		whale = base * (2.0 - 1)
	}

	if engagement != nil {
		engagementBonus = 2 * engagement.Total()
	}

	reward = int(math.Floor(base + whale + float64(engagementBonus)))
	whaleBonus = int(math.Floor(whale))
	return reward, whaleBonus, engagementBonus
}

// VerifyDetection runs the automated verification pass: 40% weight on the
// original confidence, up to 30 points for follower reach, up to 30 for
// content length in the credible band, blended 70/30 with the community
// score. Verified detections are queued for distribution.
func (s *ViralDetectorService) VerifyDetection(detectionID string) (bool, error) {
	var d models.ViralDetection
	if err := s.DB.Where("id = ?", detectionID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("detection %s not found", detectionID)
		}
		return false, err
	}
	if d.Verified {
		return true, nil
	}

	auto := 0.4 * float64(d.Confidence)

	reach := float64(d.TargetFollowers) / 1000
	if reach > 30 {
		reach = 30
	}
	auto += reach

	contentLen := len([]rune(d.Content))
	if contentLen >= 50 && contentLen <= 200 {
		auto += 30
	} else {
		auto += 15
	}

	community := float64(s.Verifier.Score(&d))
	final := 0.7*auto + 0.3*community
	if final < 70 {
		return false, nil
	}

	d.Verified = true
	d.DistributionStatus = models.DistributionPending
	if err := s.DB.Save(&d).Error; err != nil {
		return false, err
	}
	log.Printf("✅ [VIRAL] Verified detection %s (score %.1f) — reward %d queued for distribution", d.ID, final, d.Reward)
	return true, nil
}

// GetDetectionStats aggregates totals, mean confidence and the top-10
// leaderboard by reward among verified detections. Read-only.
func (s *ViralDetectorService) GetDetectionStats() (*DetectionStats, error) {
	stats := &DetectionStats{}

	if err := s.DB.Model(&models.ViralDetection{}).Count(&stats.TotalDetections).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.ViralDetection{}).Where("verified = ?", true).Count(&stats.VerifiedDetections).Error; err != nil {
		return nil, err
	}

	var totalRewards *int64
	if err := s.DB.Model(&models.ViralDetection{}).Where("verified = ?", true).
		Select("SUM(reward)").Scan(&totalRewards).Error; err != nil {
		return nil, err
	}
	if totalRewards != nil {
		stats.TotalRewards = *totalRewards
	}

	var avg *float64
	if err := s.DB.Model(&models.ViralDetection{}).
		Select("AVG(confidence)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AvgConfidence = *avg
	}

	var top []models.ViralDetection
	if err := s.DB.Where("verified = ?", true).
		Order("reward DESC").Limit(10).Find(&top).Error; err != nil {
		return nil, err
	}
	for _, d := range top {
		stats.Leaderboard = append(stats.Leaderboard, LeaderboardEntry{
			TargetFID:      d.TargetFID,
			TargetUsername: d.TargetUsername,
			Reward:         d.Reward,
			Type:           string(d.Type),
		})
	}
	return stats, nil
}

// Cleanup caps the detection store at the configured most-recent count.
func (s *ViralDetectorService) Cleanup() error {
	keep := s.DB.Model(&models.ViralDetection{}).
		Select("id").
		Order("detected_at DESC").
		Limit(s.Cfg.MaxStoredDetections)
	res := s.DB.Where("id NOT IN (?)", keep).Delete(&models.ViralDetection{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 [VIRAL] Evicted %d old detection(s)", res.RowsAffected)
	}
	return nil
}
