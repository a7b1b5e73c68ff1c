package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// Client is the shared transport of the route clients. Failed calls are
// returned as *interfaces.Error carrying the server's code and message.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a client for the server at baseURL authenticating with
// the bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Do sends in as the JSON body of a request to path and decodes the
// response into out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*MaxBodySize))
	if err != nil {
		return fmt.Errorf("could not read %s response: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Code == "" {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(respBody))
		}
		kind := interfaces.ErrorKind(errResp.Code)
		if errResp.Code == CodeInternal {
			kind = ""
		}
		return &interfaces.Error{
			Kind:         kind,
			Message:      errResp.Error,
			LedgerStatus: errResp.LedgerStatus,
			TxID:         errResp.TransactionID,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", path, err)
	}
	return nil
}
