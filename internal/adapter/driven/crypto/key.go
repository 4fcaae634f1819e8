package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize = 32 // AES-256

	// PBKDF2Iterations is the work factor for passphrase-derived keys.
	PBKDF2Iterations = 480000
	SaltSize         = 16
)

// Key is the symmetric key material used by the Engine.
type Key [KeySize]byte

// GenerateKey returns a fresh key from the system CSPRNG.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("generating key: %w", err)
	}
	return k, nil
}

// ParseKey decodes a key from its textual form. URL-safe and standard base64
// (padded or not) and hex are accepted; the decoded length must be KeySize.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, fmt.Errorf("key is empty")
	}

	decoders := []func(string) ([]byte, error){
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		hex.DecodeString,
	}
	for _, decode := range decoders {
		raw, err := decode(s)
		if err == nil && len(raw) == KeySize {
			var k Key
			copy(k[:], raw)
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("key must encode exactly %d bytes as base64 or hex", KeySize)
}

// Encode returns the URL-safe base64 form written to key files.
func (k Key) Encode() string {
	return base64.URLEncoding.EncodeToString(k[:])
}

// String never prints key material.
func (k Key) String() string {
	return "[KEY]"
}

// LogValue never logs key material.
func (k Key) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

// Fingerprint returns a short non-reversible identifier for the key, safe to
// log and compare across processes.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k[:])
	return hex.EncodeToString(sum[:8])
}

// GenerateSalt returns SaltSize bytes of cryptographically secure random data.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a key from a passphrase with PBKDF2-HMAC-SHA256. A random
// salt is generated when salt is nil; the salt used is always returned so the
// key can be re-derived later. Only escrow/export workflows use this path.
func DeriveKey(password string, salt []byte) (Key, []byte, error) {
	if password == "" {
		return Key{}, nil, fmt.Errorf("password is empty")
	}
	if salt == nil {
		var err error
		salt, err = GenerateSalt()
		if err != nil {
			return Key{}, nil, err
		}
	}

	raw := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeySize, sha256.New)
	var k Key
	copy(k[:], raw)
	for i := range raw {
		raw[i] = 0
	}
	return k, salt, nil
}
