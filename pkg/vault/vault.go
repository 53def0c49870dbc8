// Package vault owns the at-rest representation of connection parameters.
// It serializes a connector's typed parameter set deterministically,
// encrypts it through the secret cipher, and reverses the process on read.
//
// Guarantees:
//   - Plaintext parameters exist only on the call stack; they are never
//     written to persistent storage.
//   - No error message or log line produced here carries a parameter value;
//     failures reference field names only.
//   - Decrypted content is validated against the connector's declared
//     parameter schema; a mismatch signals corruption or schema version
//     skew, not a caller bug.
package vault

import (
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/logger"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
	"github.com/connectorhq/meridian/pkg/secret"
)

// Vault encrypts and decrypts connector parameter sets. Safe for concurrent
// use; both the cipher and the registry are read-only after startup.
type Vault struct {
	cipher   *secret.Cipher
	registry *registry.Registry
	logger   *zap.Logger
}

// New creates a Vault backed by the given cipher and registry.
func New(cipher *secret.Cipher, reg *registry.Registry) *Vault {
	return &Vault{
		cipher:   cipher,
		registry: reg,
		logger:   logger.Get().With(zap.String("component", "credential_vault")),
	}
}

// Store validates a parameter set against the connector's schema, serializes
// it deterministically, and encrypts it. JSON object keys are emitted in
// sorted order, so repeated stores of identical input produce identical
// plaintext bytes; the ciphertext still varies because the cipher draws a
// fresh nonce per call.
func (v *Vault) Store(tag string, params core.Parameters) (secret.EncryptedPayload, error) {
	desc, err := v.registry.Resolve(tag)
	if err != nil {
		return secret.EncryptedPayload{}, err
	}

	if err := desc.ValidateParams(params); err != nil {
		return secret.EncryptedPayload{}, err
	}

	plaintext, err := json.Marshal(params)
	if err != nil {
		// Error text stays value-free even here; the marshal error for a
		// map[string]string never fires in practice.
		return secret.EncryptedPayload{}, meridianerrors.New(meridianerrors.ErrorTypeInternal,
			"failed to serialize parameter set")
	}

	payload, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return secret.EncryptedPayload{}, err
	}

	v.logger.Debug("parameters sealed",
		zap.String("connector", tag),
		zap.Int("fields", len(params)),
		zap.Int("key_version", payload.KeyVersion))

	return payload, nil
}

// Load decrypts a payload and validates the recovered parameter set against
// the schema for the given connector tag. A payload that decrypts but does
// not match the schema fails with a schema-mismatch error: either the
// record is corrupt or the adapter's schema moved without a migration.
func (v *Vault) Load(payload secret.EncryptedPayload, tag string) (core.Parameters, error) {
	desc, err := v.registry.Resolve(tag)
	if err != nil {
		return nil, err
	}

	plaintext, err := v.cipher.Decrypt(payload)
	if err != nil {
		return nil, err
	}

	var params core.Parameters
	if err := json.Unmarshal(plaintext, &params); err != nil {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeSchemaMismatch,
			"decrypted payload for connector %s is not a parameter set", tag)
	}

	if err := desc.ValidateParams(params); err != nil {
		return nil, err
	}

	return params, nil
}
