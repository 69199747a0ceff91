// handlers/challenge_routes.go
package handlers

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"lub-reward-system/middleware"
	"lub-reward-system/models"
	"lub-reward-system/services"
	"lub-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupChallengeRoutes(app *fiber.App, engine *services.ChallengeEngine) {
	// 🔓 Gateway-authenticated, no actor context needed
	app.Get("/catalog", func(c *fiber.Ctx) error {
		return c.JSON(engine.Catalog())
	})

	// 🔐 Secured routes — require actor context from the gateway
	secured := app.Group("/", middleware.ActorContextMiddleware())

	secured.Post("/challenges", func(c *fiber.Ctx) error {
		var req struct {
			TargetFID       string            `json:"target_fid"`
			TargetUsername  string            `json:"target_username"`
			TargetFollowers int               `json:"target_followers"`
			Difficulty      models.Difficulty `json:"difficulty"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.TargetFID == "" || req.TargetUsername == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_fid and target_username are required"})
		}
		switch req.Difficulty {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "difficulty must be easy, medium or hard"})
		}

		// Prefer the fresher follower count from the profile mirror
		followers := req.TargetFollowers
		var mirror models.ProfileMirror
		if err := engine.DB.Where("fid = ?", req.TargetFID).First(&mirror).Error; err == nil {
			followers = mirror.FollowerCount
		}

		creatorFID := c.Locals("actor_fid").(string)
		target := models.TargetActor{
			FID:           req.TargetFID,
			Username:      req.TargetUsername,
			FollowerCount: followers,
		}

		challenge, err := engine.GenerateChallenge(target, req.Difficulty, creatorFID)
		if err != nil {
			var denied *services.ErrCreationDenied
			if errors.As(err, &denied) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error":    "challenge creation denied",
					"decision": denied.Decision,
				})
			}
			log.Printf("DB Error generating challenge: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate challenge"})
		}
		return c.Status(fiber.StatusCreated).JSON(challenge)
	})

	secured.Get("/challenges", func(c *fiber.Ctx) error {
		creatorFID := c.Locals("actor_fid").(string)
		challenges, err := engine.ListActiveChallenges(creatorFID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
		}
		return c.JSON(challenges)
	})

	secured.Get("/challenges/history", func(c *fiber.Ctx) error {
		creatorFID := c.Locals("actor_fid").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		results, err := engine.ListResults(creatorFID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch history"})
		}
		return c.JSON(results)
	})

	secured.Get("/challenges/:id", func(c *fiber.Ctx) error {
		challenge, err := engine.GetActiveChallenge(c.Params("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(challenge)
	})

	secured.Post("/challenges/:id/complete", func(c *fiber.Ctx) error {
		var req struct {
			Success       bool   `json:"success"`
			Evidence      string `json:"evidence"`
			ViralDetected bool   `json:"viral_detected"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		result, err := engine.CompleteChallenge(c.Params("id"), req.Success, req.Evidence, req.ViralDetected)
		if err != nil {
			if errors.Is(err, services.ErrChallengeNotActive) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not active"})
			}
			log.Printf("DB Error completing challenge: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to complete challenge"})
		}

		// Archive completion evidence when the store is configured
		if req.Evidence != "" && utils.EvidenceStoreEnabled() {
			key := fmt.Sprintf("challenges/%s.txt", result.ID)
			if url, err := utils.ArchiveEvidence(key, []byte(req.Evidence), "text/plain"); err != nil {
				log.Printf("⚠️ Evidence archival failed for %s: %v", result.ID, err)
			} else if url != "" {
				engine.DB.Model(result).Update("evidence_url", url)
				result.EvidenceURL = url
			}
		}

		return c.JSON(result)
	})
}
