package folderhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/custodytest"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authCfg = auth.Config{HMACSecret: "folder-test-secret-0123456789abcdefgh"}

var (
	alice = interfaces.AuthenticatedSubject{UserID: "user-alice", Email: "alice@example.com"}
	bob   = interfaces.AuthenticatedSubject{UserID: "user-bob", Email: "bob@example.com"}
)

func newRouter(t *testing.T, stack *custodytest.Stack) http.Handler {
	verifier, err := auth.NewJWTVerifier(authCfg)
	require.NoError(t, err)

	mux := chi.NewRouter()
	mux.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, stack.Log))
		NewHandler(stack.Assets, stack.Log).RegisterRoutes(r)
	})
	return mux
}

func tokenFor(t *testing.T, subject interfaces.AuthenticatedSubject) string {
	token, err := auth.IssueToken(authCfg, subject, time.Hour)
	require.NoError(t, err)
	return token
}

func post(t *testing.T, mux http.Handler, path, token, body string, out any) int {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBody, out), string(respBody))
	return resp.StatusCode
}

func TestHandleCreate(t *testing.T) {
	stack := custodytest.New(t)
	mux := newRouter(t, stack)
	w, err := stack.Wallets.Provision(context.Background(), alice)
	require.NoError(t, err)
	token := tokenFor(t, alice)

	var created api.CreateFolderResponse
	require.Equal(t, http.StatusOK, post(t, mux, "/nft/create", token, `{"folderName":"Documents"}`, &created))
	assert.True(t, created.Success)
	assert.NotEmpty(t, created.TokenID)
	assert.Equal(t, interfaces.AssetIDFor(created.TokenID, 1), created.NFTID)
	assert.NotEmpty(t, created.TransactionID)

	owner, ok := stack.Network.NFTOwner(created.TokenID, 1)
	require.True(t, ok)
	assert.Equal(t, w.LedgerAccountID, owner)

	var child api.CreateFolderResponse
	body := `{"folderName":"Invoices","parentFolderId":"` + created.NFTID + `"}`
	require.Equal(t, http.StatusOK, post(t, mux, "/folders", token, body, &child))
	assert.Equal(t, created.TokenID, child.TokenID, "same collection")
	assert.Equal(t, int64(2), child.SerialNumber)
}

func TestHandleCreate_Rejections(t *testing.T) {
	stack := custodytest.New(t)
	mux := newRouter(t, stack)

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusNotFound, post(t, mux, "/nft/create", tokenFor(t, alice), `{"folderName":"Documents"}`, &errResp))
	assert.Equal(t, string(interfaces.KindNotFound), errResp.Code, "no wallet yet")

	_, err := stack.Wallets.Provision(context.Background(), alice)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		status int
		code   interfaces.ErrorKind
	}{
		{"empty name", `{"folderName":"  "}`, http.StatusBadRequest, interfaces.KindInvalidArgument},
		{"long name", `{"folderName":"` + strings.Repeat("x", 101) + `"}`, http.StatusBadRequest, interfaces.KindInvalidArgument},
		{"malformed body", `{"folderName":`, http.StatusBadRequest, interfaces.KindInvalidArgument},
		{"malformed parent", `{"folderName":"a","parentFolderId":"nope"}`, http.StatusBadRequest, interfaces.KindInvalidArgument},
		{"unknown parent", `{"folderName":"a","parentFolderId":"0.0.999/1"}`, http.StatusNotFound, interfaces.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp api.ErrorResponse
			assert.Equal(t, tt.status, post(t, mux, "/nft/create", tokenFor(t, alice), tt.body, &errResp))
			assert.Equal(t, string(tt.code), errResp.Code)
		})
	}
	assert.Equal(t, 0, stack.Network.Submissions(interfaces.TxTokenMint))
}

func TestClient_TreeAndMetadata(t *testing.T) {
	stack := custodytest.New(t)
	server := httptest.NewServer(newRouter(t, stack))
	defer server.Close()
	ctx := context.Background()

	for _, subject := range []interfaces.AuthenticatedSubject{alice, bob} {
		_, err := stack.Wallets.Provision(ctx, subject)
		require.NoError(t, err)
	}

	client := NewClient(server.URL, tokenFor(t, alice))
	root, err := client.CreateFolder(ctx, "Projects", "")
	require.NoError(t, err)
	_, err = client.CreateFolder(ctx, "Alpha", root.NFTID)
	require.NoError(t, err)
	_, err = client.CreateFolder(ctx, "Archive", "")
	require.NoError(t, err)

	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	tree, err := client.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "Projects", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "Alpha", tree[0].Children[0].Name)
	assert.Equal(t, root.NFTID, tree[0].Children[0].ParentFolderID)

	meta, err := client.Metadata(ctx, root.NFTID)
	require.NoError(t, err)
	assert.Equal(t, "Projects", meta.Metadata.Name)
	assert.Equal(t, root.NFTID, meta.NFTID)

	// Folders of other users are invisible.
	bobClient := NewClient(server.URL, tokenFor(t, bob))
	_, err = bobClient.Metadata(ctx, root.NFTID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = bobClient.CreateFolder(ctx, "Intruder", root.NFTID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	bobTree, err := bobClient.Tree(ctx)
	require.NoError(t, err)
	assert.Empty(t, bobTree)
}
