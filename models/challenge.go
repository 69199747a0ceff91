package models

import "time"

// Difficulty requested by the challenge creator.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ChallengeCategory groups catalog templates.
type ChallengeCategory string

const (
	CategoryInteraction   ChallengeCategory = "interaction"
	CategoryContent       ChallengeCategory = "content"
	CategoryViral         ChallengeCategory = "viral"
	CategoryWhaleSpecific ChallengeCategory = "whale_specific"
)

// WhaleTier classifies a target by follower count.
type WhaleTier string

const (
	TierNano      WhaleTier = "nano"
	TierMicro     WhaleTier = "micro"
	TierMini      WhaleTier = "mini"
	TierWhale     WhaleTier = "whale"
	TierMegaWhale WhaleTier = "mega_whale"
	TierOrca      WhaleTier = "orca"
)

// ClassifyTier maps a follower count onto the six-level whale scale.
func ClassifyTier(followers int) WhaleTier {
	switch {
	case followers >= 500000:
		return TierOrca
	case followers >= 100000:
		return TierMegaWhale
	case followers >= 50000:
		return TierWhale
	case followers >= 10000:
		return TierMini
	case followers >= 1000:
		return TierMicro
	default:
		return TierNano
	}
}

// TierMultiplier returns the reward multiplier for a tier.
func TierMultiplier(tier WhaleTier) float64 {
	switch tier {
	case TierOrca:
		return 5.0
	case TierMegaWhale:
		return 3.0
	case TierWhale:
		return 2.0
	case TierMini:
		return 1.5
	case TierMicro:
		return 1.2
	default:
		return 1.0
	}
}

// ChallengeType is a static catalog template, immutable after load.
type ChallengeType struct {
	ID              string            `json:"id" mapstructure:"id"`
	Category        ChallengeCategory `json:"category" mapstructure:"category"`
	MinFollowers    int               `json:"min_followers" mapstructure:"min_followers"`
	MaxFollowers    int               `json:"max_followers" mapstructure:"max_followers"`
	BaseReward      int               `json:"base_reward" mapstructure:"base_reward"`
	TimeLimitMin    int               `json:"time_limit_minutes" mapstructure:"time_limit_minutes"`
	SuccessCriteria []string          `json:"success_criteria" mapstructure:"success_criteria"`
	Examples        []string          `json:"examples" mapstructure:"examples"`
}

// TargetActor is the snapshot of the social-graph target a challenge or
// detection is aimed at.
type TargetActor struct {
	FID           string `json:"fid"`
	Username      string `json:"username"`
	FollowerCount int    `json:"follower_count"`
}

// Challenge is one live instance generated from a catalog template.
type Challenge struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	TypeID          string     `gorm:"index;not null" json:"type_id"`
	TargetFID       string     `gorm:"column:target_fid;index;not null" json:"target_fid"`
	TargetUsername  string     `json:"target_username"`
	TargetFollowers int        `json:"target_followers"`
	Difficulty      Difficulty `gorm:"not null" json:"difficulty"`
	Prompt          string     `gorm:"type:text" json:"prompt"`
	BaseReward      int        `json:"base_reward"`
	WhaleMultiplier float64    `json:"whale_multiplier"`
	TotalReward     int        `json:"total_reward"`
	Deadline        time.Time  `gorm:"index;not null" json:"deadline"`
	SuccessCriteria []string   `gorm:"serializer:json" json:"success_criteria"`
	CreatedByFID    string     `gorm:"column:created_by_fid;index" json:"created_by_fid,omitempty"`

	Timestamps
}

// TimeLimit is the originally allotted window for the challenge.
func (c *Challenge) TimeLimit() time.Duration {
	return c.Deadline.Sub(c.CreatedAt)
}

// ChallengeResult is the terminal record of a completed challenge,
// appended to history whether or not it succeeded.
type ChallengeResult struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	ChallengeID   string     `gorm:"uniqueIndex;not null" json:"challenge_id"`
	TypeID        string     `json:"type_id"`
	TargetFID     string     `gorm:"column:target_fid;index" json:"target_fid"`
	CreatedByFID  string     `gorm:"column:created_by_fid;index" json:"created_by_fid,omitempty"`
	Success       bool       `json:"success"`
	BaseReward    int        `json:"base_reward"`
	WhaleBonus    int        `json:"whale_bonus"`
	ViralBonus    int        `json:"viral_bonus"`
	SpeedBonus    int        `json:"speed_bonus"`
	ActualReward  int        `json:"actual_reward"`
	Evidence      string     `gorm:"type:text" json:"evidence,omitempty"`
	EvidenceURL   string     `json:"evidence_url,omitempty"`
	CompletedAt   time.Time  `gorm:"index" json:"completed_at"`
	DistributedAt *time.Time `json:"distributed_at,omitempty"`

	Timestamps
}
