package config

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/spf13/viper"
)

// EngineSettings holds the tunable knobs of the reward core. Defaults match
// production values; an optional engine.yaml overrides them.
type EngineSettings struct {
	// Ledger rate limits
	MaxChallengesPerHour int           `mapstructure:"max_challenges_per_hour"`
	MaxChallengesPerDay  int           `mapstructure:"max_challenges_per_day"`
	ChallengeCooldown    time.Duration `mapstructure:"challenge_cooldown"`
	ReportCooldown       time.Duration `mapstructure:"report_cooldown"`
	ReviewReputation     int           `mapstructure:"review_reputation"`

	// Auto-moderation
	AutoBanReportThreshold int           `mapstructure:"auto_ban_report_threshold"`
	AutoBanDuration        time.Duration `mapstructure:"auto_ban_duration"`

	// Content quality screening
	SpamKeywords  []string `mapstructure:"spam_keywords"`
	MinContentLen int      `mapstructure:"min_content_len"`
	MaxContentLen int      `mapstructure:"max_content_len"`

	// Viral detection
	DetectionCooldown   time.Duration `mapstructure:"detection_cooldown"`
	MaxDetectionsPerDay int           `mapstructure:"max_detections_per_day"`
	ViralBaseReward     int           `mapstructure:"viral_base_reward"`
	LubKeywords         []string      `mapstructure:"lub_keywords"`
	ChallengeKeywords   []string      `mapstructure:"challenge_keywords"`
	PositiveWords       []string      `mapstructure:"positive_words"`
	WhaleFollowerFloor  int           `mapstructure:"whale_follower_floor"`

	// Retention
	ActivityRetention   time.Duration `mapstructure:"activity_retention"`
	ActorIdleEviction   time.Duration `mapstructure:"actor_idle_eviction"`
	ReportRetention     time.Duration `mapstructure:"report_retention"`
	MaxStoredDetections int           `mapstructure:"max_stored_detections"`

	// Catalog overlay: extra or replacement challenge templates.
	CatalogFile string `mapstructure:"catalog_file"`
}

// LoadEngineSettings reads engine.yaml (if present) over built-in defaults.
func LoadEngineSettings(path string) (*EngineSettings, error) {
	v := viper.New()

	v.SetDefault("max_challenges_per_hour", 5)
	v.SetDefault("max_challenges_per_day", 20)
	v.SetDefault("challenge_cooldown", "5m")
	v.SetDefault("report_cooldown", "10m")
	v.SetDefault("review_reputation", 50)

	v.SetDefault("auto_ban_report_threshold", 5)
	v.SetDefault("auto_ban_duration", "24h")

	v.SetDefault("spam_keywords", []string{
		"free money", "guaranteed", "click here", "dm me", "airdrop now",
		"100x", "pump", "giveaway scam",
	})
	v.SetDefault("min_content_len", 10)
	v.SetDefault("max_content_len", 280)

	v.SetDefault("detection_cooldown", "5m")
	v.SetDefault("max_detections_per_day", 3)
	v.SetDefault("viral_base_reward", 25)
	v.SetDefault("lub_keywords", []string{
		"lub", "$lub", "lub token", "lub match", "valentine game",
	})
	v.SetDefault("challenge_keywords", []string{
		"challenge", "dare", "matched", "memory game", "beat my score",
	})
	v.SetDefault("positive_words", []string{
		"love", "amazing", "fun", "awesome", "great", "cute", "best",
	})
	v.SetDefault("whale_follower_floor", 10000)

	v.SetDefault("activity_retention", "168h") // 7 days
	v.SetDefault("actor_idle_eviction", "720h") // 30 days
	v.SetDefault("report_retention", "168h")
	v.SetDefault("max_stored_detections", 1000)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// With an explicit config file viper surfaces a plain path error
			// for a missing file, not ConfigFileNotFoundError.
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			log.Printf("⚠️  Engine config %s not found, using defaults", path)
		}
	}

	var s EngineSettings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
