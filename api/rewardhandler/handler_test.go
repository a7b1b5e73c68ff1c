package rewardhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/custodytest"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/rewards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authCfg = auth.Config{HMACSecret: "reward-test-secret-0123456789abcdefgh"}

var alice = interfaces.AuthenticatedSubject{UserID: "user-alice", Email: "alice@example.com"}

func newServer(t *testing.T, stack *custodytest.Stack) *httptest.Server {
	verifier, err := auth.NewJWTVerifier(authCfg)
	require.NoError(t, err)

	mux := chi.NewRouter()
	mux.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, stack.Log))
		NewHandler(stack.Rewards, stack.Log).RegisterRoutes(r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func tokenFor(t *testing.T, subject interfaces.AuthenticatedSubject) string {
	token, err := auth.IssueToken(authCfg, subject, time.Hour)
	require.NoError(t, err)
	return token
}

func TestHandleReward(t *testing.T) {
	stack := custodytest.New(t)
	server := newServer(t, stack)
	ctx := context.Background()
	_, err := stack.Wallets.Provision(ctx, alice)
	require.NoError(t, err)

	// amount is optional and defaults to a multiplier of one.
	req, err := http.NewRequest(http.MethodPost, server.URL+"/rewards", bytes.NewBufferString(`{"eventType":"file_upload"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, alice))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result api.RewardResponse
	require.NoError(t, json.Unmarshal(body, &result), string(body))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Reward.RewardID)
	assert.Equal(t, "10", result.Reward.RewardAmount)
	assert.Equal(t, rewards.EventFileUpload, result.Reward.EventType)
	assert.NotEmpty(t, result.Reward.TransactionID)
}

func TestClient_RewardAndHistory(t *testing.T) {
	stack := custodytest.New(t)
	server := newServer(t, stack)
	ctx := context.Background()
	_, err := stack.Wallets.Provision(ctx, alice)
	require.NoError(t, err)

	client := NewClient(server.URL, tokenFor(t, alice))

	reward, err := client.Reward(ctx, rewards.EventFileShare, 2, map[string]string{"fileId": "f-7"})
	require.NoError(t, err)
	assert.Equal(t, "10", reward.RewardAmount)
	assert.Equal(t, int64(2), reward.Multiplier)

	_, err = client.Reward(ctx, rewards.EventReferral, 1, nil)
	require.NoError(t, err)

	history, err := client.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, rewards.EventReferral, history[0].EventType)
	assert.Equal(t, "f-7", history[1].Metadata["fileId"])

	limited, err := client.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	rates, err := client.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", rates[rewards.EventReferral])
}

func TestClient_RewardRejections(t *testing.T) {
	stack := custodytest.New(t)
	server := newServer(t, stack)
	ctx := context.Background()
	client := NewClient(server.URL, tokenFor(t, alice))

	_, err := client.Reward(ctx, rewards.EventDailyLogin, 1, nil)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = stack.Wallets.Provision(ctx, alice)
	require.NoError(t, err)

	_, err = client.Reward(ctx, "FILE_DELETE", 1, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	_, err = client.Reward(ctx, rewards.EventDailyLogin, 0, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	_, err = client.Reward(ctx, "", 1, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	_, err = client.History(ctx, -1)
	require.NoError(t, err, "non-positive limits use the default")
	assert.Equal(t, 0, stack.Network.Submissions(interfaces.TxTokenTransfer))
}
