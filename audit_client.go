package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go-liveness-verifier/models"
)

// AuditClient forwards verification outcomes to an external audit service.
// The verdict never depends on it.
type AuditClient interface {
	// RecordVerification sends one verification outcome.
	RecordVerification(ctx context.Context, record models.AuditRecord) error

	// HealthCheck verifies the audit service is available
	HealthCheck(ctx context.Context) error
}

// HttpAuditClient implements the AuditClient interface
type HttpAuditClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHttpAuditClient(baseURL string) *HttpAuditClient {
	return &HttpAuditClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HttpAuditClient) RecordVerification(ctx context.Context, record models.AuditRecord) error {
	url := fmt.Sprintf("%s/api/audit/verifications", c.baseURL)

	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute audit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("audit request failed with status %d: %s", resp.StatusCode, string(body))
	}

	slog.Debug("Audit record delivered", "challenge_id", record.ChallengeId, "status_code", resp.StatusCode)
	return nil
}

func (c *HttpAuditClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/healthz", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	slog.Info("Audit service health check passed")
	return nil
}
