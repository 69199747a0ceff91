package models

import "time"

// DecisionAction is the recommended handling for a gated action.
type DecisionAction string

const (
	ActionAllow  DecisionAction = "allow"
	ActionWarn   DecisionAction = "warn"
	ActionBlock  DecisionAction = "block"
	ActionReview DecisionAction = "review"
)

// Decision is the ledger's verdict on a rate-limited action or a piece of
// submitted text. Policy rejections are values, not errors — callers branch
// on Action and may retry after CooldownUntil.
type Decision struct {
	Action        DecisionAction `json:"action"`
	Confidence    int            `json:"confidence"`
	Reasons       []string       `json:"reasons,omitempty"`
	CooldownUntil *time.Time     `json:"cooldown_until,omitempty"`
	IsSpam        bool           `json:"is_spam"`
}

// Allowed reports whether the caller may proceed (warnings still proceed).
func (d *Decision) Allowed() bool {
	return d.Action == ActionAllow || d.Action == ActionWarn
}

// UserStats is the read-only aggregate view of one actor for presentation.
type UserStats struct {
	FID               string     `json:"fid"`
	ReputationScore   int        `json:"reputation_score"`
	ChallengesCreated int64      `json:"challenges_created"`
	ViralDetections   int64      `json:"viral_detections"`
	ReportsFiled      int64      `json:"reports_filed"`
	WarningsReceived  int64      `json:"warnings_received"`
	Banned            bool       `json:"banned"`
	BannedUntil       *time.Time `json:"banned_until,omitempty"`
	NextChallengeAt   *time.Time `json:"next_challenge_at,omitempty"`
	NextReportAt      *time.Time `json:"next_report_at,omitempty"`
	NextDetectionAt   *time.Time `json:"next_detection_at,omitempty"`
}
