package license

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// IntegrityTokens are redundant hash tokens derived from the session's
// authorization-relevant fields. They are re-verified immediately before
// every grant of the protected feature, so patching the authenticated flag
// alone is insufficient: all three values must also agree with the live
// session fields.
type IntegrityTokens struct {
	TokenA   string
	TokenB   string
	Checksum string
}

// DeriveTokens computes the token set for the given session fields.
func DeriveTokens(username, token string, expiresAt time.Time, remainingDays int) IntegrityTokens {
	a := sha256.Sum256([]byte(username + "|" + token + "|T1"))
	b := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|T2", expiresAt.Unix(), remainingDays)))

	tokenA := hex.EncodeToString(a[:])
	tokenB := hex.EncodeToString(b[:])

	ha := sha256.Sum256([]byte(tokenA))
	hb := sha256.Sum256([]byte(tokenB))
	checksum := make([]byte, len(ha))
	for i := range ha {
		checksum[i] = ha[i] ^ hb[i]
	}

	return IntegrityTokens{
		TokenA:   tokenA,
		TokenB:   tokenB,
		Checksum: hex.EncodeToString(checksum),
	}
}

// Verify recomputes all three tokens from the current session fields and
// requires exact equality. Empty or missing stored tokens fail.
func (t IntegrityTokens) Verify(username, token string, expiresAt time.Time, remainingDays int) bool {
	if t.TokenA == "" || t.TokenB == "" || t.Checksum == "" {
		return false
	}
	expected := DeriveTokens(username, token, expiresAt, remainingDays)
	ok := subtle.ConstantTimeCompare([]byte(t.TokenA), []byte(expected.TokenA))
	ok &= subtle.ConstantTimeCompare([]byte(t.TokenB), []byte(expected.TokenB))
	ok &= subtle.ConstantTimeCompare([]byte(t.Checksum), []byte(expected.Checksum))
	return ok == 1
}
