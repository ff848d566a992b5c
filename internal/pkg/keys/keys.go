// Package keys handles service key secrets: the bearer format, the HMAC
// lookup value and the argon2id PHC hash stored next to it.
package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	Time        = 2
	MemoryMB    = 16
	Threads     = 1
	KeyLen      = 32
	SaltBytes   = 16
	SecretBytes = 24
)

// Parse strips prefix from a bearer value.
func Parse(raw, prefix string) (secret string, ok bool) {
	if prefix == "" || !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	secret = strings.TrimPrefix(raw, prefix)
	return secret, secret != ""
}

// Lookup is the indexed HMAC-SHA256 of the secret, 64 hex chars.
func Lookup(pepper, secret string) string {
	m := hmac.New(sha256.New, []byte(pepper))
	m.Write([]byte(secret))
	return hex.EncodeToString(m.Sum(nil))
}

// Generate returns a fresh bearer value and the secret inside it.
func Generate(prefix string) (token, secret string, err error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(b)
	return prefix + secret, secret, nil
}

func Hash(secret, pepper string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret+pepper), salt, Time, MemoryMB*1024, Threads, KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, MemoryMB*1024, Time, Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks secret against a PHC string produced by Hash.
func Verify(secret, pepper, phc string) (bool, error) {
	parts := strings.Split(phc, "$")
	if len(parts) < 2 || parts[1] != "argon2id" {
		return false, errors.New("unsupported hash format")
	}
	if len(parts) != 6 {
		return false, errors.New("invalid phc")
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false, fmt.Errorf("invalid phc params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("invalid phc salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("invalid phc key: %w", err)
	}

	got := argon2.IDKey([]byte(secret+pepper), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
