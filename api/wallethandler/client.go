package wallethandler

import (
	"context"
	"net/http"

	"github.com/ruteri/custodial-wallet-backend/api"
)

// Client calls the onboarding routes as one user.
type Client struct {
	*api.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{Client: api.NewClient(baseURL, token)}
}

func (c *Client) Status(ctx context.Context) (*api.OnboardingStatusResponse, error) {
	var resp api.OnboardingStatusResponse
	if err := c.Do(ctx, http.MethodGet, "/onboarding/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Start(ctx context.Context) (*api.OnboardingStartResponse, error) {
	var resp api.OnboardingStartResponse
	if err := c.Do(ctx, http.MethodPost, "/onboarding/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateWallet(ctx context.Context) (*api.Wallet, error) {
	var resp api.WalletResponse
	if err := c.Do(ctx, http.MethodPost, "/wallet/create", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Wallet, nil
}

func (c *Client) Wallet(ctx context.Context) (*api.Wallet, error) {
	var resp api.WalletResponse
	if err := c.Do(ctx, http.MethodGet, "/wallet/get", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Wallet, nil
}

func (c *Client) Balance(ctx context.Context) (*api.BalanceResponse, error) {
	var resp api.BalanceResponse
	if err := c.Do(ctx, http.MethodGet, "/wallet/balance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteWallet returns the account deletion transaction id.
func (c *Client) DeleteWallet(ctx context.Context) (string, error) {
	var resp api.DeleteWalletResponse
	if err := c.Do(ctx, http.MethodDelete, "/wallet/delete", nil, &resp); err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}
