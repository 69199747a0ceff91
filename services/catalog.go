// services/catalog.go
package services

import (
	"fmt"
	"log"

	"lub-reward-system/models"

	"github.com/spf13/viper"
)

// FallbackTemplateID is the lowest-friction template, used when no catalog
// entry fits the target.
const FallbackTemplateID = "emoji_reply"

// DefaultCatalog returns the built-in challenge templates. Entries are
// immutable after load; MaxFollowers <= 0 means unbounded.
func DefaultCatalog() []models.ChallengeType {
	return []models.ChallengeType{
		{
			ID:           "emoji_reply",
			Category:     models.CategoryInteraction,
			MinFollowers: 0,
			MaxFollowers: 0,
			BaseReward:   25,
			TimeLimitMin: 15,
			SuccessCriteria: []string{
				"target replies with at least one emoji",
			},
			Examples: []string{
				"Get @%s to react to your cast with an emoji 💝",
				"Earn a quick emoji reply from @%s",
			},
		},
		{
			ID:           "cast_reply",
			Category:     models.CategoryInteraction,
			MinFollowers: 0,
			MaxFollowers: 50000,
			BaseReward:   50,
			TimeLimitMin: 30,
			SuccessCriteria: []string{
				"target posts a text reply to your cast",
			},
			Examples: []string{
				"Get @%s to reply to one of your casts",
				"Spark a conversation — earn a written reply from @%s",
			},
		},
		{
			ID:           "game_mention",
			Category:     models.CategoryContent,
			MinFollowers: 0,
			MaxFollowers: 100000,
			BaseReward:   100,
			TimeLimitMin: 45,
			SuccessCriteria: []string{
				"target mentions the game or $LUB in a cast",
			},
			Examples: []string{
				"Get @%s to mention the Valentine memory game in a cast",
				"Convince @%s to cast about $LUB",
			},
		},
		{
			ID:           "quote_cast",
			Category:     models.CategoryContent,
			MinFollowers: 500,
			MaxFollowers: 100000,
			BaseReward:   150,
			TimeLimitMin: 60,
			SuccessCriteria: []string{
				"target quote-casts your game share",
			},
			Examples: []string{
				"Get @%s to quote your game result cast",
			},
		},
		{
			ID:           "viral_thread",
			Category:     models.CategoryViral,
			MinFollowers: 1000,
			MaxFollowers: 0,
			BaseReward:   400,
			TimeLimitMin: 120,
			SuccessCriteria: []string{
				"target starts a thread about the game",
				"thread gathers at least 10 engagements",
			},
			Examples: []string{
				"Get @%s to start a thread about their match with you",
				"Have @%s rally their followers around a $LUB challenge",
			},
		},
		{
			ID:           "whale_shoutout",
			Category:     models.CategoryWhaleSpecific,
			MinFollowers: 10000,
			MaxFollowers: 0,
			BaseReward:   500,
			TimeLimitMin: 180,
			SuccessCriteria: []string{
				"target gives the game a dedicated shoutout cast",
			},
			Examples: []string{
				"Land a shoutout for the game from @%s",
				"Get whale @%s to cast about their $LUB rewards",
			},
		},
		{
			ID:           "orca_collab",
			Category:     models.CategoryWhaleSpecific,
			MinFollowers: 100000,
			MaxFollowers: 0,
			BaseReward:   1000,
			TimeLimitMin: 240,
			SuccessCriteria: []string{
				"target co-creates content featuring the game",
				"content is pinned or recast by the target",
			},
			Examples: []string{
				"Set up a collab cast with @%s featuring the game",
			},
		},
	}
}

// LoadCatalog returns the default templates with any overrides from the
// configured catalog file applied by id. Unknown ids are appended.
func LoadCatalog(catalogFile string) ([]models.ChallengeType, error) {
	catalog := DefaultCatalog()
	if catalogFile == "" {
		return catalog, nil
	}

	v := viper.New()
	v.SetConfigFile(catalogFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", catalogFile, err)
	}

	var overrides []models.ChallengeType
	if err := v.UnmarshalKey("templates", &overrides); err != nil {
		return nil, fmt.Errorf("parse catalog templates: %w", err)
	}

	byID := make(map[string]int, len(catalog))
	for i, t := range catalog {
		byID[t.ID] = i
	}
	for _, o := range overrides {
		if i, ok := byID[o.ID]; ok {
			catalog[i] = o
		} else {
			catalog = append(catalog, o)
		}
	}
	log.Printf("📋 [CATALOG] Loaded %d challenge templates (%d overrides from %s)", len(catalog), len(overrides), catalogFile)
	return catalog, nil
}

// strategyTip picks the prompt hint for a template category and target tier.
func strategyTip(category models.ChallengeCategory, tier models.WhaleTier) string {
	switch category {
	case models.CategoryWhaleSpecific:
		if tier == models.TierOrca || tier == models.TierMegaWhale {
			return "Big accounts respond to genuine engagement — reference their recent casts before asking."
		}
		return "Whales get many asks; make yours playful and specific to the game."
	case models.CategoryViral:
		return "Give them something worth sharing — a close score or a funny match moment."
	case models.CategoryContent:
		return "A screenshot of your match makes the ask concrete."
	default:
		if tier == models.TierNano {
			return "Smaller accounts reply fast — keep it casual."
		}
		return "Lead with something you liked about their casts."
	}
}
