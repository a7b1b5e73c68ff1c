package cryptoutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEnvelopeRoundTrip(t *testing.T) {
	dataKey := randomKey(t)
	wrapped := []byte("wrapped-by-kms")

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Private key",
			data: randomKey(t),
		},
		{
			name: "Binary data",
			data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD},
		},
		{
			name: "Max size secret",
			data: make([]byte, 4096),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := SealEnvelope(dataKey, wrapped, tc.data, []byte("alias/wallet-keys"))
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), string(tc.data[:4]))

			env, err := ParseEnvelope(sealed)
			require.NoError(t, err)
			assert.Equal(t, wrapped, env.WrappedKey)

			plaintext, err := env.Open(dataKey, []byte("alias/wallet-keys"))
			require.NoError(t, err)
			assert.Equal(t, tc.data, plaintext)
		})
	}
}

func TestEnvelopeRejectsWrongKeyOrAAD(t *testing.T) {
	dataKey := randomKey(t)
	sealed, err := SealEnvelope(dataKey, []byte("wrapped"), []byte("secret"), []byte("ref-a"))
	require.NoError(t, err)

	env, err := ParseEnvelope(sealed)
	require.NoError(t, err)

	_, err = env.Open(randomKey(t), []byte("ref-a"))
	assert.Error(t, err, "Should fail with a different data key")

	_, err = env.Open(dataKey, []byte("ref-b"))
	assert.Error(t, err, "Should fail under a different key reference")
}

func TestParseEnvelopeMalformed(t *testing.T) {
	_, err := ParseEnvelope(nil)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = ParseEnvelope([]byte("XXXX\x00\x01a"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = ParseEnvelope([]byte("CWV1\x00\x05abc"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}
