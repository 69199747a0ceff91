package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	// StartingReputation is assigned to every actor on first contact.
	StartingReputation = 75

	WarningReputationPenalty    = 10
	AutoActionReputationPenalty = 25

	MaxActivityHistory = 100
)

// ActivityType tags one entry in an actor's activity history.
type ActivityType string

const (
	ActivityChallengeCreated ActivityType = "challenge_created"
	ActivityViralDetected    ActivityType = "viral_detected"
	ActivityReportFiled      ActivityType = "report_filed"
	ActivityWarningIssued    ActivityType = "warning_issued"
)

// ActorRecord tracks per-actor counters, reputation and cooldown anchors.
// Keyed by the actor's Farcaster FID.
type ActorRecord struct {
	// GORM would snake-case FID to f_id; pin the column names the raw
	// clauses and indexes use.
	FID string `gorm:"column:fid;primaryKey" json:"fid"`

	ChallengesCreated int64 `json:"challenges_created" gorm:"default:0"`
	ViralDetections   int64 `json:"viral_detections" gorm:"default:0"`
	ReportsFiled      int64 `json:"reports_filed" gorm:"default:0"`
	WarningsReceived  int64 `json:"warnings_received" gorm:"default:0"`

	// ReputationScore stays within [0,100]; starts at StartingReputation.
	ReputationScore int `json:"reputation_score" gorm:"default:75"`

	LastChallengeAt      *time.Time `json:"last_challenge_at,omitempty"`
	LastViralDetectionAt *time.Time `json:"last_viral_detection_at,omitempty"`
	LastReportAt         *time.Time `json:"last_report_at,omitempty"`

	BannedUntil *time.Time `json:"banned_until,omitempty" gorm:"index"`

	Timestamps
}

// ActivityEvent is one entry in an actor's history. Each activity type
// carries its own detail columns instead of an open-ended payload.
type ActivityEvent struct {
	ID       string       `gorm:"primaryKey" json:"id"`
	ActorFID string       `gorm:"column:actor_fid;index:idx_actor_events,priority:1;not null" json:"actor_fid"`
	Type     ActivityType `gorm:"index;not null" json:"type"`

	// challenge_created
	ChallengeID   string `json:"challenge_id,omitempty"`
	TargetFID     string `gorm:"column:target_fid" json:"target_fid,omitempty"`
	ChallengeType string `json:"challenge_type,omitempty"`

	// viral_detected
	DetectionID string `json:"detection_id,omitempty"`
	Confidence  int    `json:"confidence,omitempty"`

	// report_filed
	ReportID string `json:"report_id,omitempty"`

	// warning_issued
	Reason string `json:"reason,omitempty"`

	OccurredAt time.Time `gorm:"index:idx_actor_events,priority:2;not null" json:"occurred_at"`
}

// ClampReputation bounds a raw reputation value to [0,100].
func ClampReputation(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// IsBanned reports whether the actor is blocked from rate-limited actions.
func (a *ActorRecord) IsBanned(now time.Time) bool {
	return a.BannedUntil != nil && now.Before(*a.BannedUntil)
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
