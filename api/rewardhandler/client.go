package rewardhandler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ruteri/custodial-wallet-backend/api"
)

// Client calls the reward routes as one user.
type Client struct {
	*api.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{Client: api.NewClient(baseURL, token)}
}

// Reward claims the reward for eventType, multiplied by amount.
func (c *Client) Reward(ctx context.Context, eventType string, amount int64, metadata map[string]string) (*api.Reward, error) {
	var resp api.RewardResponse
	req := api.RewardRequest{EventType: eventType, Amount: &amount, Metadata: metadata}
	if err := c.Do(ctx, http.MethodPost, "/rewards", req, &resp); err != nil {
		return nil, err
	}
	return resp.Reward, nil
}

// History returns up to limit rewards, newest first. A zero limit uses the
// server default.
func (c *Client) History(ctx context.Context, limit int) ([]*api.Reward, error) {
	path := "/rewards"
	if limit > 0 {
		path = fmt.Sprintf("/rewards?limit=%d", limit)
	}
	var resp api.RewardHistoryResponse
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rewards, nil
}

func (c *Client) Schedule(ctx context.Context) (map[string]string, error) {
	var resp ScheduleResponse
	if err := c.Do(ctx, http.MethodGet, "/rewards/schedule", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rates, nil
}
