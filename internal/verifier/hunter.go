package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"referral-api/internal/apperrors"
)

const hunterBaseURL = "https://api.hunter.io"

// statuses accepted as deliverable
const (
	StatusValid     = "valid"
	StatusAcceptAll = "accept_all"
)

// HunterClient calls the hunter.io email verification API
type HunterClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type verifierResponse struct {
	Data struct {
		Status string `json:"status"`
		Result string `json:"result"`
		Score  int    `json:"score"`
	} `json:"data"`
}

// NewHunterClient creates a new HunterClient. An empty baseURL uses the
// production endpoint.
func NewHunterClient(apiKey, baseURL string) *HunterClient {
	if baseURL == "" {
		baseURL = hunterBaseURL
	}
	return &HunterClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// CheckEmail verifies email deliverability. It returns true only for the
// "valid" and "accept_all" statuses. A non-200 response is an upstream
// error and is not retried.
func (c *HunterClient) CheckEmail(ctx context.Context, email string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v2/email-verifier?email=%s&api_key=%s",
		c.baseURL, url.QueryEscape(email), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build verifier request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, apperrors.NewUpstream("email verification request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, apperrors.NewUpstream(
			fmt.Sprintf("email verification service returned status %d", resp.StatusCode), nil)
	}

	var result verifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, apperrors.NewUpstream("failed to decode verifier response", err)
	}

	status := result.Data.Status
	return status == StatusValid || status == StatusAcceptAll, nil
}
