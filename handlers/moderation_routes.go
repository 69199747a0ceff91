// handlers/moderation_routes.go
package handlers

import (
	"errors"
	"fmt"
	"log"

	"lub-reward-system/middleware"
	"lub-reward-system/models"
	"lub-reward-system/services"
	"lub-reward-system/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupModerationRoutes(app *fiber.App, ledger *services.LedgerService) {
	secured := app.Group("/", middleware.ActorContextMiddleware())

	secured.Post("/reports", func(c *fiber.Ctx) error {
		var req struct {
			TargetFID   string                `json:"target_fid"`
			Category    models.ReportCategory `json:"category"`
			Description string                `json:"description"`
			Evidence    string                `json:"evidence"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.TargetFID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_fid is required"})
		}
		switch req.Category {
		case models.ReportCategorySpam, models.ReportCategoryAbuse, models.ReportCategoryFake, models.ReportCategoryInappropriate:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "category must be spam, abuse, fake or inappropriate"})
		}

		reporterFID := c.Locals("actor_fid").(string)

		// Snapshot evidence to the archive before filing, so the report
		// row carries a durable URL even if the source post disappears.
		evidenceURL := ""
		if req.Evidence != "" && utils.EvidenceStoreEnabled() {
			key := fmt.Sprintf("reports/%s-%s.txt", reporterFID, req.TargetFID)
			if url, err := utils.ArchiveEvidence(key, []byte(req.Evidence), "text/plain"); err != nil {
				log.Printf("⚠️ Evidence archival failed: %v", err)
			} else {
				evidenceURL = url
			}
		}

		report, err := ledger.SubmitReport(reporterFID, req.TargetFID, req.Category, req.Description, req.Evidence, evidenceURL)
		if err != nil {
			if errors.Is(err, services.ErrReportCooldown) {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
			}
			if errors.Is(err, services.ErrReporterBanned) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
			}
			log.Printf("DB Error submitting report: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to submit report"})
		}
		return c.Status(fiber.StatusCreated).JSON(report)
	})

	secured.Get("/user/stats", func(c *fiber.Ctx) error {
		fid := c.Locals("actor_fid").(string)
		stats, err := ledger.GetUserStats(fid)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
		}
		return c.JSON(stats)
	})

	// Admin endpoints
	adminGroup := app.Group("/admin", middleware.ActorContextMiddleware())

	adminGroup.Get("/reports/pending", func(c *fiber.Ctx) error {
		var reports []models.CommunityReport
		if err := ledger.DB.Where("status = ?", models.ReportStatusPending).
			Order("created_at ASC").Find(&reports).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch reports"})
		}
		return c.JSON(reports)
	})

	adminGroup.Post("/reports/:id/resolve", func(c *fiber.Ctx) error {
		var req struct {
			Status models.ReportStatus `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		report, err := ledger.ResolveReport(c.Params("id"), req.Status)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(report)
	})

	adminGroup.Get("/users/:fid/stats", func(c *fiber.Ctx) error {
		stats, err := ledger.GetUserStats(c.Params("fid"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
		}
		return c.JSON(stats)
	})
}
