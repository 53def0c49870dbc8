package secret

import (
	"crypto/sha256"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/connectorhq/meridian/pkg/config"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

// kdfSalt is fixed so the same secret always derives the same key. Rotation
// is handled through the payload key version, not the salt.
var kdfSalt = []byte("meridian-credential-vault")

const kdfIterations = 100_000

// DeriveKey stretches an arbitrary secret string into a 32-byte cipher key
// using PBKDF2-SHA256.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, KeySize, sha256.New)
}

// LoadKey resolves cipher key material from the configured source. The
// returned key is derived, never the raw secret, so the secret itself never
// sits in memory longer than this call.
func LoadKey(cfg config.SecurityConfig) ([]byte, error) {
	switch cfg.KeySource {
	case "env":
		secret := os.Getenv(cfg.KeyEnv)
		if secret == "" {
			return nil, meridianerrors.Newf(meridianerrors.ErrorTypeConfig,
				"environment variable %s is empty or unset", cfg.KeyEnv)
		}
		return DeriveKey(secret), nil
	case "file":
		data, err := os.ReadFile(cfg.KeyFile) //nolint:gosec // G304: path comes from operator config
		if err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig, "failed to read key file")
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return nil, meridianerrors.New(meridianerrors.ErrorTypeConfig, "key file is empty")
		}
		return DeriveKey(secret), nil
	default:
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeConfig,
			"unknown key source %q", cfg.KeySource)
	}
}
