package models

import "time"

// ProfileMirror is a local copy of the Farcaster profile fields the engine
// needs for tier classification. Refreshed by the profile sync worker.
type ProfileMirror struct {
	FID           string    `gorm:"column:fid;primaryKey" json:"fid"`
	Username      string    `gorm:"index" json:"username"`
	DisplayName   string    `json:"display_name,omitempty"`
	FollowerCount int       `json:"follower_count"`
	PfpURL        string    `json:"pfp_url,omitempty"`
	SyncedAt      time.Time `json:"synced_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Target converts the mirror row into the snapshot the engine operates on.
func (p *ProfileMirror) Target() TargetActor {
	return TargetActor{
		FID:           p.FID,
		Username:      p.Username,
		FollowerCount: p.FollowerCount,
	}
}
