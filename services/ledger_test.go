package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"lub-reward-system/models"
	"lub-reward-system/testutil"

	"github.com/google/uuid"
)

func newTestLedger(t *testing.T) *LedgerService {
	t.Helper()
	return NewLedgerService(testutil.OpenTestDB(t), testutil.DefaultSettings(t))
}

func seedChallengeEvents(t *testing.T, s *LedgerService, fid string, n int, occurredAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := models.ActivityEvent{
			ID:         uuid.NewString(),
			ActorFID:   fid,
			Type:       models.ActivityChallengeCreated,
			OccurredAt: occurredAt,
		}
		if err := s.DB.Create(&ev).Error; err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}
}

func TestReputationStaysBounded(t *testing.T) {
	s := newTestLedger(t)

	for i := 0; i < 12; i++ {
		err := s.RecordActivity("u1", models.ActivityEvent{
			Type:   models.ActivityWarningIssued,
			Reason: "test warning",
		})
		if err != nil {
			t.Fatalf("RecordActivity error: %v", err)
		}
	}

	var actor models.ActorRecord
	if err := s.DB.Where("fid = ?", "u1").First(&actor).Error; err != nil {
		t.Fatalf("load actor: %v", err)
	}
	if actor.ReputationScore != 0 {
		t.Fatalf("reputation=%d, want 0 after 12 warnings from 75", actor.ReputationScore)
	}
	if actor.WarningsReceived != 12 {
		t.Fatalf("warnings=%d, want 12", actor.WarningsReceived)
	}
}

func TestHourlyChallengeLimitBlocks(t *testing.T) {
	s := newTestLedger(t)

	if _, err := s.EnsureActor(s.DB, "u1"); err != nil {
		t.Fatalf("ensure actor: %v", err)
	}
	seedChallengeEvents(t, s, "u1", 5, time.Now().Add(-10*time.Minute))

	d, err := s.CanCreateChallenge("u1", "target")
	if err != nil {
		t.Fatalf("CanCreateChallenge error: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Fatalf("action=%s, want block at hourly limit", d.Action)
	}
	if d.CooldownUntil == nil || !d.CooldownUntil.After(time.Now()) {
		t.Fatalf("expected a future cooldown, got %v", d.CooldownUntil)
	}
}

func TestDailyChallengeLimitBlocks(t *testing.T) {
	s := newTestLedger(t)

	if _, err := s.EnsureActor(s.DB, "u1"); err != nil {
		t.Fatalf("ensure actor: %v", err)
	}
	// Under the hourly limit, over the daily one
	seedChallengeEvents(t, s, "u1", 4, time.Now().Add(-30*time.Minute))
	seedChallengeEvents(t, s, "u1", 16, time.Now().Add(-5*time.Hour))

	d, err := s.CanCreateChallenge("u1", "target")
	if err != nil {
		t.Fatalf("CanCreateChallenge error: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Fatalf("action=%s, want block at daily limit", d.Action)
	}
}

func TestBannedActorDeniedEverywhere(t *testing.T) {
	s := newTestLedger(t)

	until := time.Now().Add(2 * time.Hour)
	actor := models.ActorRecord{FID: "banned", ReputationScore: 100, BannedUntil: &until}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	d, err := s.CanCreateChallenge("banned", "target")
	if err != nil {
		t.Fatalf("CanCreateChallenge error: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Fatalf("challenge action=%s, want block for banned actor", d.Action)
	}
	if d.CooldownUntil == nil || !d.CooldownUntil.Equal(until) {
		t.Fatalf("cooldown=%v, want ban expiry %v", d.CooldownUntil, until)
	}

	d, err = s.CanDetectViral("banned")
	if err != nil {
		t.Fatalf("CanDetectViral error: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Fatalf("detect action=%s, want block for banned actor", d.Action)
	}
}

func TestLowReputationRoutesToReview(t *testing.T) {
	s := newTestLedger(t)

	actor := models.ActorRecord{FID: "shady", ReputationScore: 40}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	d, err := s.CanCreateChallenge("shady", "target")
	if err != nil {
		t.Fatalf("CanCreateChallenge error: %v", err)
	}
	if d.Action != models.ActionReview {
		t.Fatalf("action=%s, want review below reputation threshold", d.Action)
	}
}

func TestChallengeCooldownWarns(t *testing.T) {
	s := newTestLedger(t)

	last := time.Now().Add(-2 * time.Minute)
	actor := models.ActorRecord{FID: "u1", ReputationScore: 75, LastChallengeAt: &last}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	d, err := s.CanCreateChallenge("u1", "target")
	if err != nil {
		t.Fatalf("CanCreateChallenge error: %v", err)
	}
	if d.Action != models.ActionWarn {
		t.Fatalf("action=%s, want warn during per-target cooldown", d.Action)
	}
	if d.CooldownUntil == nil {
		t.Fatal("expected cooldown timestamp on warn")
	}
}

func TestValidateContentQualitySpam(t *testing.T) {
	s := newTestLedger(t)

	d, err := s.ValidateContentQuality("AAAAAAAAAA!!!", "u1")
	if err != nil {
		t.Fatalf("ValidateContentQuality error: %v", err)
	}
	if d.Confidence < 80 {
		t.Fatalf("confidence=%d, want >= 80 for repeated all-caps run", d.Confidence)
	}
	if d.Action != models.ActionBlock {
		t.Fatalf("action=%s, want block", d.Action)
	}
	if !d.IsSpam {
		t.Fatal("expected IsSpam")
	}
}

func TestValidateContentQualityClean(t *testing.T) {
	s := newTestLedger(t)

	d, err := s.ValidateContentQuality("I love this game today", "fresh")
	if err != nil {
		t.Fatalf("ValidateContentQuality error: %v", err)
	}
	if d.Action != models.ActionAllow {
		t.Fatalf("action=%s (confidence %d, reasons %v), want allow", d.Action, d.Confidence, d.Reasons)
	}
	if d.IsSpam {
		t.Fatal("clean content flagged as spam")
	}
}

func TestValidateContentQualityKeywordsAndReputation(t *testing.T) {
	s := newTestLedger(t)

	actor := models.ActorRecord{FID: "low", ReputationScore: 40}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	// keyword (+20) and reputation deficit (capped +15)
	d, err := s.ValidateContentQuality("free money for everyone right now", "low")
	if err != nil {
		t.Fatalf("ValidateContentQuality error: %v", err)
	}
	if d.Confidence != 35 {
		t.Fatalf("confidence=%d, want 35 (20 keyword + 15 reputation)", d.Confidence)
	}
	if d.Action != models.ActionAllow {
		t.Fatalf("action=%s, want allow below warn threshold", d.Action)
	}
}

func TestRepeatedRunScore(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"hello", 0},
		{"aaaa", 0},   // run of 4 is allowed
		{"aaaaa", 40}, // run of 5
		{"aaaaaaaaaa", 80},
		{"aaaaa bbbbb", 80},
	}
	for _, tc := range cases {
		if got := repeatedRunScore([]rune(tc.in)); got != tc.want {
			t.Errorf("repeatedRunScore(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHistoryTruncation(t *testing.T) {
	s := newTestLedger(t)

	for i := 0; i < models.MaxActivityHistory+10; i++ {
		err := s.RecordActivity("u1", models.ActivityEvent{
			Type:        models.ActivityChallengeCreated,
			ChallengeID: fmt.Sprintf("c%d", i),
		})
		if err != nil {
			t.Fatalf("RecordActivity error: %v", err)
		}
	}

	var count int64
	s.DB.Model(&models.ActivityEvent{}).Where("actor_fid = ?", "u1").Count(&count)
	if count != int64(models.MaxActivityHistory) {
		t.Fatalf("history=%d, want capped at %d", count, models.MaxActivityHistory)
	}
}

func TestReportCooldown(t *testing.T) {
	s := newTestLedger(t)

	if _, err := s.SubmitReport("r1", "t1", models.ReportCategorySpam, "spamming", "", ""); err != nil {
		t.Fatalf("first report: %v", err)
	}
	_, err := s.SubmitReport("r1", "t2", models.ReportCategorySpam, "spamming", "", "")
	if !errors.Is(err, ErrReportCooldown) {
		t.Fatalf("err=%v, want ErrReportCooldown", err)
	}
}

func TestAutoBanFiresExactlyOnce(t *testing.T) {
	s := newTestLedger(t)

	for i := 1; i <= 5; i++ {
		reporter := fmt.Sprintf("r%d", i)
		if _, err := s.SubmitReport(reporter, "victim", models.ReportCategoryAbuse, "bad actor", "", ""); err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
	}

	var target models.ActorRecord
	if err := s.DB.Where("fid = ?", "victim").First(&target).Error; err != nil {
		t.Fatalf("load target: %v", err)
	}
	if target.BannedUntil == nil || !target.BannedUntil.After(time.Now()) {
		t.Fatal("expected target to be auto-banned at 5 pending reports")
	}
	if target.ReputationScore != 50 {
		t.Fatalf("reputation=%d, want 50 (75 - 25 once)", target.ReputationScore)
	}
	firstBan := *target.BannedUntil

	// A 6th report must not re-apply the penalty
	if _, err := s.SubmitReport("r6", "victim", models.ReportCategoryAbuse, "still bad", "", ""); err != nil {
		t.Fatalf("sixth report: %v", err)
	}
	if err := s.DB.Where("fid = ?", "victim").First(&target).Error; err != nil {
		t.Fatalf("reload target: %v", err)
	}
	if target.ReputationScore != 50 {
		t.Fatalf("reputation=%d after 6th report, want unchanged 50", target.ReputationScore)
	}
	if !target.BannedUntil.Equal(firstBan) {
		t.Fatalf("ban extended by 6th report: %v != %v", target.BannedUntil, firstBan)
	}
}

func TestFIDColumnsAddressableFromSQL(t *testing.T) {
	s := newTestLedger(t)

	err := s.RecordActivity("u1", models.ActivityEvent{
		Type:        models.ActivityChallengeCreated,
		ChallengeID: "c1",
		TargetFID:   "t1",
	})
	if err != nil {
		t.Fatalf("RecordActivity error: %v", err)
	}
	if _, err := s.SubmitReport("r1", "t1", models.ReportCategorySpam, "spamming", "", ""); err != nil {
		t.Fatalf("SubmitReport error: %v", err)
	}

	// The raw clauses throughout the services use these exact column names;
	// the models must map to them, not to GORM's f_id snake-casing.
	var fid string
	if err := s.DB.Raw("SELECT fid FROM actor_records WHERE fid = ?", "u1").Scan(&fid).Error; err != nil {
		t.Fatalf("actor fid column: %v", err)
	}
	if fid != "u1" {
		t.Fatalf("fid=%q, want u1", fid)
	}

	var actorFID string
	if err := s.DB.Raw("SELECT actor_fid FROM activity_events WHERE target_fid = ?", "t1").Scan(&actorFID).Error; err != nil {
		t.Fatalf("activity event fid columns: %v", err)
	}
	if actorFID != "u1" {
		t.Fatalf("actor_fid=%q, want u1", actorFID)
	}

	var reporterFID string
	if err := s.DB.Raw("SELECT reporter_fid FROM community_reports WHERE target_fid = ?", "t1").Scan(&reporterFID).Error; err != nil {
		t.Fatalf("report fid columns: %v", err)
	}
	if reporterFID != "r1" {
		t.Fatalf("reporter_fid=%q, want r1", reporterFID)
	}
}

func TestBannedReporterRejected(t *testing.T) {
	s := newTestLedger(t)

	until := time.Now().Add(2 * time.Hour)
	actor := models.ActorRecord{FID: "badguy", ReputationScore: 75, BannedUntil: &until}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	_, err := s.SubmitReport("badguy", "victim", models.ReportCategoryAbuse, "payback", "", "")
	if !errors.Is(err, ErrReporterBanned) {
		t.Fatalf("err=%v, want ErrReporterBanned", err)
	}

	var count int64
	s.DB.Model(&models.CommunityReport{}).Count(&count)
	if count != 0 {
		t.Fatalf("reports=%d from banned reporter, want 0", count)
	}
}

func TestIdleActorEvictionAllowsReturn(t *testing.T) {
	s := newTestLedger(t)

	err := s.RecordActivity("ghost", models.ActivityEvent{
		Type:        models.ActivityChallengeCreated,
		ChallengeID: "c1",
	})
	if err != nil {
		t.Fatalf("RecordActivity error: %v", err)
	}

	stale := time.Now().Add(-31 * 24 * time.Hour)
	if err := s.DB.Model(&models.ActorRecord{}).Where("fid = ?", "ghost").
		UpdateColumn("updated_at", stale).Error; err != nil {
		t.Fatalf("backdate actor: %v", err)
	}

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}

	// Eviction frees the primary key outright, no tombstone left behind
	var rows int64
	s.DB.Unscoped().Model(&models.ActorRecord{}).Where("fid = ?", "ghost").Count(&rows)
	if rows != 0 {
		t.Fatalf("evicted actor rows=%d, want 0", rows)
	}

	err = s.RecordActivity("ghost", models.ActivityEvent{
		Type:        models.ActivityChallengeCreated,
		ChallengeID: "c2",
	})
	if err != nil {
		t.Fatalf("returning actor blocked: %v", err)
	}

	var actor models.ActorRecord
	if err := s.DB.Where("fid = ?", "ghost").First(&actor).Error; err != nil {
		t.Fatalf("load returning actor: %v", err)
	}
	if actor.ChallengesCreated != 1 {
		t.Fatalf("challenges created=%d after return, want fresh 1", actor.ChallengesCreated)
	}
	if actor.ReputationScore != models.StartingReputation {
		t.Fatalf("reputation=%d after return, want %d", actor.ReputationScore, models.StartingReputation)
	}
}

func TestGetUserStatsIdempotent(t *testing.T) {
	s := newTestLedger(t)

	err := s.RecordActivity("u1", models.ActivityEvent{Type: models.ActivityChallengeCreated, ChallengeID: "c1"})
	if err != nil {
		t.Fatalf("RecordActivity error: %v", err)
	}

	a, err := s.GetUserStats("u1")
	if err != nil {
		t.Fatalf("GetUserStats error: %v", err)
	}
	b, err := s.GetUserStats("u1")
	if err != nil {
		t.Fatalf("GetUserStats error: %v", err)
	}
	if a.ChallengesCreated != b.ChallengesCreated || a.ReputationScore != b.ReputationScore || a.Banned != b.Banned {
		t.Fatalf("stats changed without mutation: %+v vs %+v", a, b)
	}
}

func TestCleanupRetention(t *testing.T) {
	s := newTestLedger(t)

	// Old event past retention, fresh one inside it
	old := models.ActivityEvent{
		ID: uuid.NewString(), ActorFID: "u1", Type: models.ActivityChallengeCreated,
		OccurredAt: time.Now().Add(-8 * 24 * time.Hour),
	}
	fresh := models.ActivityEvent{
		ID: uuid.NewString(), ActorFID: "u1", Type: models.ActivityChallengeCreated,
		OccurredAt: time.Now().Add(-time.Hour),
	}
	if err := s.DB.Create(&old).Error; err != nil {
		t.Fatalf("create old event: %v", err)
	}
	if err := s.DB.Create(&fresh).Error; err != nil {
		t.Fatalf("create fresh event: %v", err)
	}

	expired := time.Now().Add(-time.Hour)
	actor := models.ActorRecord{FID: "u1", ReputationScore: 75, BannedUntil: &expired}
	if err := s.DB.Create(&actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}

	resolvedAt := time.Now().Add(-8 * 24 * time.Hour)
	report := models.CommunityReport{
		ID: uuid.NewString(), ReporterFID: "r1", TargetFID: "u1",
		Category: models.ReportCategorySpam, Status: models.ReportStatusResolved, ResolvedAt: &resolvedAt,
	}
	if err := s.DB.Create(&report).Error; err != nil {
		t.Fatalf("create report: %v", err)
	}

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}

	var events int64
	s.DB.Model(&models.ActivityEvent{}).Where("actor_fid = ?", "u1").Count(&events)
	if events != 1 {
		t.Fatalf("events=%d after cleanup, want 1", events)
	}

	var reloaded models.ActorRecord
	if err := s.DB.Where("fid = ?", "u1").First(&reloaded).Error; err != nil {
		t.Fatalf("reload actor: %v", err)
	}
	if reloaded.BannedUntil != nil {
		t.Fatal("expired ban not cleared")
	}

	var reports int64
	s.DB.Model(&models.CommunityReport{}).Count(&reports)
	if reports != 0 {
		t.Fatalf("reports=%d after cleanup, want 0", reports)
	}
}
