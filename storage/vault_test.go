package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeKV serves the KV v2 data and metadata endpoints under "secret".
func newFakeKV(t *testing.T) *httptest.Server {
	var mu sync.Mutex
	records := map[string]map[string]interface{}{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		mu.Lock()
		defer mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
			name := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
			switch r.Method {
			case http.MethodGet:
				data, ok := records[name]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					w.Write([]byte(`{"errors":[]}`))
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 1}},
				})
			case http.MethodPut, http.MethodPost:
				var body struct {
					Options map[string]interface{} `json:"options"`
					Data    map[string]interface{} `json:"data"`
				}
				json.NewDecoder(r.Body).Decode(&body)
				if cas, ok := body.Options["cas"]; ok && cas.(float64) == 0 {
					if _, exists := records[name]; exists {
						w.WriteHeader(http.StatusBadRequest)
						w.Write([]byte(`{"errors":["check-and-set parameter did not match the current version"]}`))
						return
					}
				}
				records[name] = body.Data
				json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
			}
		case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/") && r.Method == http.MethodDelete:
			delete(records, strings.TrimPrefix(r.URL.Path, "/v1/secret/metadata/"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestVaultKeyStore(t *testing.T) {
	srv := newFakeKV(t)
	defer srv.Close()

	store, err := NewVaultKeyStore(srv.URL, "/secret/", "custody/keys", VaultOptions{Token: "test-token"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetKey(ctx, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	rec := &interfaces.KeyRecord{
		UserID:                 "user-1",
		LedgerAccountID:        "0.0.1001",
		EncryptedPrivateKey:    []byte{0xde, 0xad, 0xbe, 0xef},
		EncryptionKeyReference: "wallet-keys",
		KeyAlgorithm:           interfaces.KeyAlgorithmECDSASecp256k1,
	}
	require.NoError(t, store.CreateKey(ctx, rec))
	assert.ErrorIs(t, store.CreateKey(ctx, rec), interfaces.ErrConditionFailed)

	got, err := store.GetKey(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, rec.EncryptedPrivateKey, got.EncryptedPrivateKey)
	assert.Equal(t, "0.0.1001", got.LedgerAccountID)

	require.NoError(t, store.DeleteKey(ctx, "user-1"))
	_, err = store.GetKey(ctx, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestVaultKeyStore_Denied(t *testing.T) {
	srv := newFakeKV(t)
	defer srv.Close()

	store, err := NewVaultKeyStore(srv.URL, "secret", "custody/keys", VaultOptions{Token: "wrong"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	err = store.CreateKey(context.Background(), &interfaces.KeyRecord{UserID: "user-1"})
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
