package secret

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/config"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

func testKey(tb testing.TB) []byte {
	tb.Helper()
	return DeriveKey("test-master-secret")
}

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey(t), 1)
	require.NoError(t, err)

	plaintext := []byte(`{"host":"db.internal","password":"s3cret"}`)
	payload, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)

	assert.Equal(t, 1, payload.KeyVersion)
	assert.NotEmpty(t, payload.Nonce)
	assert.NotContains(t, string(payload.Ciphertext), "s3cret")

	recovered, err := cipher.Decrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestCipherNonceVariesCiphertext(t *testing.T) {
	cipher, err := NewCipher(testKey(t), 1)
	require.NoError(t, err)

	plaintext := []byte("identical input")
	first, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first.Nonce, second.Nonce))
	assert.False(t, bytes.Equal(first.Ciphertext, second.Ciphertext))
}

func TestCipherTamperDetection(t *testing.T) {
	cipher, err := NewCipher(testKey(t), 1)
	require.NoError(t, err)

	payload, err := cipher.Encrypt([]byte("sensitive payload"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *EncryptedPayload)
	}{
		{
			name:   "flipped ciphertext byte",
			mutate: func(p *EncryptedPayload) { p.Ciphertext[0] ^= 0x01 },
		},
		{
			name:   "flipped auth tag byte",
			mutate: func(p *EncryptedPayload) { p.Ciphertext[len(p.Ciphertext)-1] ^= 0x01 },
		},
		{
			name:   "flipped nonce byte",
			mutate: func(p *EncryptedPayload) { p.Nonce[0] ^= 0x01 },
		},
		{
			name:   "truncated nonce",
			mutate: func(p *EncryptedPayload) { p.Nonce = p.Nonce[:4] },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := EncryptedPayload{
				KeyVersion: payload.KeyVersion,
				Nonce:      append([]byte(nil), payload.Nonce...),
				Ciphertext: append([]byte(nil), payload.Ciphertext...),
			}
			tt.mutate(&mutated)

			_, err := cipher.Decrypt(mutated)
			require.Error(t, err)
			assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeDecryption))
			assert.NotContains(t, err.Error(), "sensitive payload")
		})
	}
}

func TestCipherWrongKey(t *testing.T) {
	sealer, err := NewCipher(DeriveKey("first secret"), 1)
	require.NoError(t, err)
	opener, err := NewCipher(DeriveKey("second secret"), 1)
	require.NoError(t, err)

	payload, err := sealer.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = opener.Decrypt(payload)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeDecryption))
}

func TestCipherKeyVersionMismatch(t *testing.T) {
	key := testKey(t)
	sealer, err := NewCipher(key, 1)
	require.NoError(t, err)
	opener, err := NewCipher(key, 2)
	require.NoError(t, err)

	payload, err := sealer.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = opener.Decrypt(payload)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeDecryption))
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher([]byte("too short"), 1)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConfig))

	_, err = NewCipher(testKey(t), 0)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConfig))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	first := DeriveKey("the same secret")
	second := DeriveKey("the same secret")
	other := DeriveKey("a different secret")

	assert.Len(t, first, KeySize)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestLoadKeyFromEnv(t *testing.T) {
	t.Setenv("MERIDIAN_TEST_SECRET", "env secret")

	cfg := config.SecurityConfig{KeySource: "env", KeyEnv: "MERIDIAN_TEST_SECRET"}
	key, err := LoadKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, DeriveKey("env secret"), key)

	cfg.KeyEnv = "MERIDIAN_TEST_SECRET_UNSET"
	_, err = LoadKey(cfg)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConfig))
}
