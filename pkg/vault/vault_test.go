package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
	"github.com/connectorhq/meridian/pkg/secret"
)

const testTag = "fake_backend"

func newTestVault(t *testing.T) (*Vault, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(&registry.Descriptor{
		Tag:     testTag,
		Name:    "Fake Backend",
		Version: "0.0.1",
		Schema: []core.ParameterSpec{
			{Name: "host", Required: true},
			{Name: "port", Default: "5432"},
			{Name: "password", Required: true, Secret: true},
		},
		Factory: func(core.Parameters) (core.Connector, error) { return nil, nil },
	}))

	cipher, err := secret.NewCipher(secret.DeriveKey("vault-test-secret"), 1)
	require.NoError(t, err)

	return New(cipher, reg), reg
}

func TestVaultRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)

	params := core.Parameters{
		"host":     "db.internal",
		"port":     "5433",
		"password": "hunter2-secret",
	}

	payload, err := v.Store(testTag, params)
	require.NoError(t, err)
	assert.NotContains(t, string(payload.Ciphertext), "hunter2-secret")

	recovered, err := v.Load(payload, testTag)
	require.NoError(t, err)
	assert.Equal(t, params, recovered)
}

func TestVaultDeterministicPlaintext(t *testing.T) {
	v, _ := newTestVault(t)

	params := core.Parameters{"host": "db.internal", "password": "pw"}

	first, err := v.Store(testTag, params)
	require.NoError(t, err)
	second, err := v.Store(testTag, params)
	require.NoError(t, err)

	// Same plaintext both times, so both payloads decrypt to the same set;
	// the ciphertext differs because each store draws a fresh nonce.
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	firstParams, err := v.Load(first, testTag)
	require.NoError(t, err)
	secondParams, err := v.Load(second, testTag)
	require.NoError(t, err)
	assert.Equal(t, firstParams, secondParams)
}

func TestVaultRejectsInvalidParams(t *testing.T) {
	v, _ := newTestVault(t)

	tests := []struct {
		name   string
		params core.Parameters
		field  string
	}{
		{
			name:   "missing required field",
			params: core.Parameters{"host": "db.internal"},
			field:  "password",
		},
		{
			name:   "empty required field",
			params: core.Parameters{"host": "", "password": "pw"},
			field:  "host",
		},
		{
			name:   "unknown field",
			params: core.Parameters{"host": "db.internal", "password": "pw", "hsot": "typo"},
			field:  "hsot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Store(testTag, tt.params)
			require.Error(t, err)
			assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeSchemaMismatch))

			// The error names the offending field but never a value.
			assert.Contains(t, err.Error(), tt.field)
			assert.NotContains(t, err.Error(), "pw")
			assert.NotContains(t, err.Error(), "db.internal")
		})
	}
}

func TestVaultUnknownConnector(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Store("no_such_backend", core.Parameters{"host": "h"})
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeUnknownConnector))
}

func TestVaultLoadTamperedPayload(t *testing.T) {
	v, _ := newTestVault(t)

	payload, err := v.Store(testTag, core.Parameters{"host": "db.internal", "password": "pw"})
	require.NoError(t, err)

	payload.Ciphertext[0] ^= 0x01
	_, err = v.Load(payload, testTag)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeDecryption))
	assert.NotContains(t, err.Error(), "pw")
}

func TestVaultLoadSchemaMismatch(t *testing.T) {
	v, reg := newTestVault(t)

	// Register a second backend whose schema does not overlap, then store
	// under one tag and load under the other.
	require.NoError(t, reg.Register(&registry.Descriptor{
		Tag:     "other_backend",
		Name:    "Other",
		Version: "0.0.1",
		Schema: []core.ParameterSpec{
			{Name: "uri", Required: true, Secret: true},
		},
		Factory: func(core.Parameters) (core.Connector, error) { return nil, nil },
	}))

	payload, err := v.Store(testTag, core.Parameters{"host": "db.internal", "password": "pw"})
	require.NoError(t, err)

	_, err = v.Load(payload, "other_backend")
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeSchemaMismatch))
}
