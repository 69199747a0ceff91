// workers/distribution_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"lub-reward-system/models"

	"gorm.io/gorm"
)

// DistributionRequest is the payload sent to the token-transfer service.
type DistributionRequest struct {
	RecipientFID  string `json:"recipient_fid"`
	Amount        int    `json:"amount"`
	ReferenceType string `json:"reference_type"` // "viral_detection" | "challenge_result"
	ReferenceID   string `json:"reference_id"`
}

// DistributionClient delivers LUB payouts to the external token service.
// The service is expected to be idempotent on reference id; this side is
// at-least-once.
type DistributionClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewDistributionClient(db *gorm.DB, baseURL, token string) *DistributionClient {
	return &DistributionClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// send posts one distribution. A non-2xx 4xx answer is permanent; anything
// else is transient and retried on the next tick.
func (c *DistributionClient) send(ctx context.Context, req DistributionRequest) (permanent bool, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return true, fmt.Errorf("failed to encode distribution request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/distributions", bytes.NewReader(body))
	if err != nil {
		return true, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("failed to call distribution service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("distribution service returned %d: %s", resp.StatusCode, string(respBody))
	return resp.StatusCode >= 400 && resp.StatusCode < 500, err
}

// PollDistributions drains pending payouts on an interval: verified
// detections queued by the detector, and successful challenge results not
// yet distributed.
func PollDistributions(ctx context.Context, client *DistributionClient, pollInterval time.Duration) {
	log.Println("Starting reward distribution polling…")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reward distribution polling stopped.")
			return
		case <-ticker.C:
			if err := client.drainDetections(ctx); err != nil {
				log.Printf("❌ Detection payout pass failed: %v", err)
			}
			if err := client.drainChallengeResults(ctx); err != nil {
				log.Printf("❌ Challenge payout pass failed: %v", err)
			}
		}
	}
}

func (c *DistributionClient) drainDetections(ctx context.Context) error {
	var pending []models.ViralDetection
	if err := c.DB.Where("distribution_status = ?", models.DistributionPending).
		Order("detected_at ASC").Limit(50).Find(&pending).Error; err != nil {
		return err
	}

	for _, d := range pending {
		permanent, err := c.send(ctx, DistributionRequest{
			RecipientFID:  d.TargetFID,
			Amount:        d.Reward,
			ReferenceType: "viral_detection",
			ReferenceID:   d.ID,
		})
		if err != nil {
			log.Printf("⚠️ Distribution for detection %s failed (permanent=%t): %v", d.ID, permanent, err)
			if permanent {
				c.DB.Model(&d).Update("distribution_status", models.DistributionFailed)
			}
			// transient: stays pending, retried next tick
			continue
		}
		now := time.Now()
		if err := c.DB.Model(&d).Updates(map[string]interface{}{
			"distribution_status": models.DistributionConfirmed,
			"distributed_at":      &now,
		}).Error; err != nil {
			return err
		}
		log.Printf("💸 Distributed %d LUB for detection %s → %s", d.Reward, d.ID, d.TargetFID)
	}
	return nil
}

func (c *DistributionClient) drainChallengeResults(ctx context.Context) error {
	var pending []models.ChallengeResult
	if err := c.DB.Where("success = ? AND actual_reward > 0 AND distributed_at IS NULL", true).
		Order("completed_at ASC").Limit(50).Find(&pending).Error; err != nil {
		return err
	}

	for _, r := range pending {
		recipient := r.CreatedByFID
		if recipient == "" {
			recipient = r.TargetFID
		}
		permanent, err := c.send(ctx, DistributionRequest{
			RecipientFID:  recipient,
			Amount:        r.ActualReward,
			ReferenceType: "challenge_result",
			ReferenceID:   r.ID,
		})
		if err != nil {
			log.Printf("⚠️ Distribution for challenge result %s failed (permanent=%t): %v", r.ID, permanent, err)
			if permanent {
				// permanent rejections are left undistributed for moderation
				continue
			}
			continue
		}
		now := time.Now()
		if err := c.DB.Model(&r).Update("distributed_at", &now).Error; err != nil {
			return err
		}
		log.Printf("💸 Distributed %d LUB for challenge %s → %s", r.ActualReward, r.ChallengeID, recipient)
	}
	return nil
}
