// Package crypto implements the token-opacity primitives shared across the
// signing backend (C2): it hashes passwords and OTPs with the same slow,
// salted primitive, mints opaque share tokens, and derives short human
// codes from signature hashes. No caller outside this package ever sees a
// raw secret after it has been hashed - that is the single
// security-critical invariant the rest of the system leans on.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashSecret hashes a password or OTP with bcrypt. Slow and salted by
// construction; comparisons are constant-time via bcrypt.CompareHashAndPassword.
func HashSecret(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("crypto: secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret reports whether plain matches hash, in constant time.
func VerifySecret(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// MintShareToken returns a fresh 256-bit random token (URL-safe base64, no
// padding) and its SHA-256 hex digest. Only the digest is ever persisted;
// the raw token is handed to the caller once and must never be logged.
func MintShareToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	hash = Sha256Hex([]byte(raw))
	return raw, hash, nil
}

// MintOtp6 returns a six-digit decimal OTP drawn uniformly from
// [100000, 999999] using a CSPRNG.
func MintOtp6() (string, error) {
	const (
		low  = 100000
		high = 999999
	)
	n, err := rand.Int(rand.Reader, big.NewInt(high-low+1))
	if err != nil {
		return "", err
	}
	return big.NewInt(low).Add(big.NewInt(low), n).String(), nil
}

// ShortCodeFromSignatureHash returns the first six uppercase hex characters
// of a signature hash, used as a human-readable tracking code.
func ShortCodeFromSignatureHash(hash string) string {
	if len(hash) < 6 {
		return ""
	}
	upper := make([]byte, 6)
	for i := 0; i < 6; i++ {
		c := hash[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper)
}
