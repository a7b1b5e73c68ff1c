package kms

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeTransit serves the two Transit endpoints used by TransitKeyService.
func newFakeTransit(t *testing.T) *httptest.Server {
	var mu sync.Mutex
	issued := map[string]string{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		mu.Lock()
		defer mu.Unlock()

		switch {
		case r.URL.Path == "/v1/transit/datakey/plaintext/wallet-keys":
			key := make([]byte, 32)
			rand.Read(key)
			plaintext := base64.StdEncoding.EncodeToString(key)
			ciphertext := "vault:v1:" + base64.StdEncoding.EncodeToString([]byte(plaintext))[:24]
			issued[ciphertext] = plaintext
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"plaintext": plaintext, "ciphertext": ciphertext},
			})
		case r.URL.Path == "/v1/transit/decrypt/wallet-keys":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			plaintext, ok := issued[body["ciphertext"]]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"errors":["invalid ciphertext"]}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"plaintext": plaintext},
			})
		case strings.HasPrefix(r.URL.Path, "/v1/transit/"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":["key not found"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTransitKeyService(t *testing.T) {
	srv := newFakeTransit(t)
	defer srv.Close()

	svc, err := NewTransitKeyService(srv.URL, "test-token", "/transit/")
	require.NoError(t, err)
	ctx := context.Background()

	dataKey, wrapped, err := svc.GenerateDataKey(ctx, "wallet-keys")
	require.NoError(t, err)
	assert.Len(t, dataKey, 32)
	assert.True(t, strings.HasPrefix(string(wrapped), "vault:v1:"))

	unwrapped, err := svc.DecryptDataKey(ctx, "wallet-keys", wrapped)
	require.NoError(t, err)
	assert.Equal(t, dataKey, unwrapped)

	_, _, err = svc.GenerateDataKey(ctx, "missing-key")
	assert.Error(t, err)

	_, err = svc.DecryptDataKey(ctx, "wallet-keys", []byte("vault:v1:forged"))
	assert.Error(t, err)
}

func TestTransitKeyService_Denied(t *testing.T) {
	srv := newFakeTransit(t)
	defer srv.Close()

	svc, err := NewTransitKeyService(srv.URL, "wrong-token", "transit")
	require.NoError(t, err)

	_, _, err = svc.GenerateDataKey(context.Background(), "wallet-keys")
	assert.Error(t, err)
}
