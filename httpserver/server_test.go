package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/api/folderhandler"
	"github.com/ruteri/custodial-wallet-backend/api/rewardhandler"
	"github.com/ruteri/custodial-wallet-backend/api/wallethandler"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/custodytest"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/rewards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authCfg = auth.Config{HMACSecret: "server-test-secret-0123456789abcdefgh", Issuer: "custody-test"}

func newTestServer(t *testing.T, stack *custodytest.Stack, ready func(context.Context) error) (*Server, *httptest.Server) {
	verifier, err := auth.NewJWTVerifier(authCfg)
	require.NoError(t, err)

	srv, err := New(&api.HTTPServerConfig{
		Log:                      stack.Log,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, Routes{
		Verifier: verifier,
		Handlers: []RouteRegistrar{
			wallethandler.NewHandler(stack.Wallets, stack.Log),
			folderhandler.NewHandler(stack.Assets, stack.Log),
			rewardhandler.NewHandler(stack.Rewards, stack.Log),
		},
		Ready: ready,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestNew_RequiresVerifier(t *testing.T) {
	_, err := New(&api.HTTPServerConfig{}, Routes{})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestHealthEndpoints(t *testing.T) {
	stack := custodytest.New(t)
	var readyErr error
	_, ts := newTestServer(t, stack, func(context.Context) error { return readyErr })

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/livez"))
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/readyz"))

	readyErr = errors.New("operator unavailable")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts.URL+"/readyz"))
	readyErr = nil

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/drain"))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts.URL+"/readyz"))
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/drain"))
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/livez"), "liveness unaffected by draining")

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/undrain"))
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/readyz"))
}

func TestRoutesRequireAuthentication(t *testing.T) {
	stack := custodytest.New(t)
	_, ts := newTestServer(t, stack, nil)

	for _, path := range []string{"/onboarding/status", "/wallet/get", "/nft/list", "/folders", "/rewards"} {
		assert.Equal(t, http.StatusUnauthorized, get(t, ts.URL+path), path)
	}
}

// A user onboards, organizes folders, earns rewards and closes the wallet.
func TestUserJourney(t *testing.T) {
	stack := custodytest.New(t)
	_, ts := newTestServer(t, stack, nil)
	ctx := context.Background()

	token, err := auth.IssueToken(authCfg, interfaces.AuthenticatedSubject{UserID: "user-carol", Email: "carol@example.com"}, time.Hour)
	require.NoError(t, err)
	wallets := wallethandler.NewClient(ts.URL, token)
	folders := folderhandler.NewClient(ts.URL, token)
	rewardsClient := rewardhandler.NewClient(ts.URL, token)

	status, err := wallets.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasWallet)

	started, err := wallets.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, custodytest.Network, started.Network)
	assert.Equal(t, 1, stack.Network.AccountCount())

	// Starting again never creates a second account.
	again, err := wallets.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, started.HederaAccountID, again.HederaAccountID)
	assert.Equal(t, 1, stack.Network.AccountCount())

	root, err := folders.CreateFolder(ctx, "Photos", "")
	require.NoError(t, err)
	_, err = folders.CreateFolder(ctx, "2024", root.NFTID)
	require.NoError(t, err)
	tree, err := folders.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].Children, 1)

	reward, err := rewardsClient.Reward(ctx, rewards.EventFileUpload, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "30", reward.RewardAmount)

	balance, err := wallets.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, started.HederaAccountID, balance.AccountID)
	assert.Equal(t, uint64(3000), balance.Tokens[stack.TokenID])
	assert.Positive(t, balance.Tinybars)

	// The account is the treasury of its folder collection, so the ledger
	// refuses to delete it.
	_, err = wallets.DeleteWallet(ctx)
	assert.ErrorIs(t, err, interfaces.ErrLedgerRejected)
	w, err := wallets.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.WalletActive, w.Status)
}

func TestDeleteWallet(t *testing.T) {
	stack := custodytest.New(t)
	_, ts := newTestServer(t, stack, nil)
	ctx := context.Background()

	token, err := auth.IssueToken(authCfg, interfaces.AuthenticatedSubject{UserID: "user-dave"}, time.Hour)
	require.NoError(t, err)
	wallets := wallethandler.NewClient(ts.URL, token)

	_, err = wallets.Start(ctx)
	require.NoError(t, err)

	txID, err := wallets.DeleteWallet(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.Equal(t, 0, stack.Network.AccountCount())

	_, err = wallets.Wallet(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// A fresh wallet can be provisioned afterwards.
	restarted, err := wallets.Start(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, restarted.HederaAccountID)
}
