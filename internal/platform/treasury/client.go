// Package treasury is an HTTP client for the external payout treasury,
// the service that actually moves funds onto end-user wallets.
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// Client calls the treasury's REST API. It implements domain.PayoutExecutor.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ domain.PayoutExecutor = (*Client)(nil)

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type payoutRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
	Asset  string  `json:"asset"`
	Chain  string  `json:"chain"`
}

type payoutResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

// PayOut asks the treasury to transfer amount (in the quote currency) to
// the user's wallet on the given chain. The returned reference is the
// treasury's transaction identifier and is recorded on the position.
func (c *Client) PayOut(ctx context.Context, userID string, amount float64, asset, chain string) (domain.PayoutResult, error) {
	body, err := json.Marshal(payoutRequest{
		UserID: userID,
		Amount: amount,
		Asset:  asset,
		Chain:  chain,
	})
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("treasury: marshal payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("treasury: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("treasury: payout request: %w: %v", domain.ErrPayoutFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("treasury: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.PayoutResult{}, fmt.Errorf("treasury: payout rejected: %w: status %d: %s", domain.ErrPayoutFailed, resp.StatusCode, string(raw))
	}

	var out payoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.PayoutResult{}, fmt.Errorf("treasury: decode response: %w", err)
	}
	if !out.Success {
		return domain.PayoutResult{}, fmt.Errorf("treasury: payout declined: %w: %s", domain.ErrPayoutFailed, out.Error)
	}
	return domain.PayoutResult{Reference: out.Reference}, nil
}
