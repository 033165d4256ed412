package security

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters, OWASP recommended minimums. Key derivation runs once at
// startup so the CPU cost is acceptable.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// appSecret is compiled into the binary. It is one of three inputs to the
// store key; on its own it unlocks nothing.
const appSecret = "c-canvas-store-v1-9f2e71c04ab8"

// DeriveStoreKey derives the HMAC signing key for the credential store from
// the device fingerprint, the absolute path of the store file and the
// application secret. Tying the key to the fingerprint defeats copying the
// credential file to another machine; tying it to the path defeats copying it
// to another location on the same machine.
func DeriveStoreKey(fingerprint, storePath string) ([]byte, error) {
	absPath, err := filepath.Abs(storePath)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}

	material := []byte(fingerprint + "|" + absPath + "|" + appSecret)

	// Deterministic salt: this derivation must be reproducible across runs,
	// so the salt is bound to the same inputs rather than random.
	salt := sha256.Sum256([]byte("c-canvas-store-salt|" + absPath))

	key, err := scrypt.Key(material, salt[:], scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}
