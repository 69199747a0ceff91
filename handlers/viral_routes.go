// handlers/viral_routes.go
package handlers

import (
	"log"

	"lub-reward-system/models"
	"lub-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupViralRoutes(app *fiber.App, detector *services.ViralDetectorService) {
	// Detections come from the platform polling/webhook layer, which
	// authenticates as the gateway — no end-user actor context.

	app.Post("/detections", func(c *fiber.Ctx) error {
		var req struct {
			ChallengeID string `json:"challenge_id"`
			Target      struct {
				FID           string `json:"fid"`
				Username      string `json:"username"`
				FollowerCount int    `json:"follower_count"`
			} `json:"target"`
			Content    string                    `json:"content"`
			Engagement *models.EngagementMetrics `json:"engagement,omitempty"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Target.FID == "" || req.Content == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target.fid and content are required"})
		}

		target := models.TargetActor{
			FID:           req.Target.FID,
			Username:      req.Target.Username,
			FollowerCount: req.Target.FollowerCount,
		}
		detection, err := detector.DetectViralMention(req.ChallengeID, target, req.Content, req.Engagement)
		if err != nil {
			log.Printf("DB Error detecting mention: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process post"})
		}
		if detection == nil {
			// Policy rejection or below the confidence floor — not an error
			return c.JSON(fiber.Map{"detected": false})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"detected":  true,
			"detection": detection,
		})
	})

	app.Post("/detections/:id/verify", func(c *fiber.Ctx) error {
		verified, err := detector.VerifyDetection(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"verified": verified})
	})

	app.Get("/detections/stats", func(c *fiber.Ctx) error {
		stats, err := detector.GetDetectionStats()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute stats"})
		}
		return c.JSON(stats)
	})
}
