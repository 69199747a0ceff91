package models

import "time"

// ReportCategory classifies a community report.
type ReportCategory string

const (
	ReportCategorySpam          ReportCategory = "spam"
	ReportCategoryAbuse         ReportCategory = "abuse"
	ReportCategoryFake          ReportCategory = "fake"
	ReportCategoryInappropriate ReportCategory = "inappropriate"
)

// ReportStatus indicates where a report is in its lifecycle.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewed  ReportStatus = "reviewed"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// CommunityReport is filed by one actor against another. Created pending;
// only moderation or the auto-action path move it forward.
type CommunityReport struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ReporterFID string         `gorm:"column:reporter_fid;index;not null" json:"reporter_fid"`
	TargetFID   string         `gorm:"column:target_fid;index;not null" json:"target_fid"`
	Category    ReportCategory `gorm:"not null" json:"category"`
	Description string         `gorm:"type:text" json:"description"`
	Evidence    string         `gorm:"type:text" json:"evidence,omitempty"`
	EvidenceURL string         `json:"evidence_url,omitempty"`
	Status      ReportStatus   `gorm:"not null;default:'pending';index" json:"status"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`

	Timestamps
}
