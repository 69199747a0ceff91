package models

import "time"

// DetectionType tags the strongest signal family a post matched.
type DetectionType string

const (
	DetectionLubMention         DetectionType = "lub_mention"
	DetectionChallengeReference DetectionType = "challenge_reference"
	DetectionOrganicShare       DetectionType = "organic_share"
)

// DistributionStatus tracks the token payout for a verified detection.
// The explicit status lets the distribution worker retry failed transfers
// instead of losing them.
type DistributionStatus string

const (
	DistributionNone      DistributionStatus = "none"
	DistributionPending   DistributionStatus = "pending"
	DistributionConfirmed DistributionStatus = "confirmed"
	DistributionFailed    DistributionStatus = "failed"
)

// EngagementMetrics are optional platform counts attached to a post.
type EngagementMetrics struct {
	Likes   int `json:"likes"`
	Recasts int `json:"recasts"`
	Replies int `json:"replies"`
}

// Total is the combined engagement count used for the bonus.
func (e EngagementMetrics) Total() int {
	return e.Likes + e.Recasts + e.Replies
}

// ViralDetection is a scored, confidence-weighted mention of the game or
// token. Created unverified; a later verification pass confirms it.
type ViralDetection struct {
	ID              string        `gorm:"primaryKey" json:"id"`
	ChallengeID     string        `gorm:"index" json:"challenge_id"`
	TargetFID       string        `gorm:"column:target_fid;index;not null" json:"target_fid"`
	TargetUsername  string        `json:"target_username"`
	TargetFollowers int           `json:"target_followers"`
	DetectedAt      time.Time     `gorm:"index;not null" json:"detected_at"`
	Content         string        `gorm:"type:text" json:"content"`
	Type            DetectionType `gorm:"not null" json:"type"`
	Confidence      int           `json:"confidence"`
	Reward          int           `json:"reward"`
	WhaleBonus      int           `json:"whale_bonus"`
	EngagementBonus int           `json:"engagement_bonus"`
	Verified        bool          `gorm:"default:false;index" json:"verified"`

	DistributionStatus DistributionStatus `gorm:"not null;default:'none';index" json:"distribution_status"`
	DistributedAt      *time.Time         `json:"distributed_at,omitempty"`

	Timestamps
}
