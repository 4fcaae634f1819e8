package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey_Unique(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestParseKey_Encodings(t *testing.T) {
	want := testKey(t, 0x5a)

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "url base64", encoded: base64.URLEncoding.EncodeToString(want[:])},
		{name: "raw url base64", encoded: base64.RawURLEncoding.EncodeToString(want[:])},
		{name: "std base64", encoded: base64.StdEncoding.EncodeToString(want[:])},
		{name: "hex", encoded: hex.EncodeToString(want[:])},
		{name: "surrounding whitespace", encoded: "  " + want.Encode() + "\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseKey(tc.encoded)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseKey_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "short", base64.URLEncoding.EncodeToString(make([]byte, 16))} {
		_, err := ParseKey(in)
		assert.Errorf(t, err, "input %q", in)
	}
}

func TestKey_NeverPrinted(t *testing.T) {
	k := testKey(t, 0x41)

	assert.Equal(t, "[KEY]", fmt.Sprint(k))
	assert.Equal(t, "[KEY]", k.LogValue().String())
	assert.NotContains(t, fmt.Sprintf("%v", k), k.Encode())

	var lv slog.LogValuer = k
	assert.Equal(t, "[KEY]", lv.LogValue().String())
	assert.Len(t, k.Fingerprint(), 16)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1, s1, err := DeriveKey("correct horse", salt)
	require.NoError(t, err)
	k2, s2, err := DeriveKey("correct horse", salt)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, salt, s1)
	assert.Equal(t, s1, s2)
}

func TestDeriveKey_GeneratesSalt(t *testing.T) {
	k1, s1, err := DeriveKey("correct horse", nil)
	require.NoError(t, err)
	require.Len(t, s1, SaltSize)

	k2, s2, err := DeriveKey("correct horse", nil)
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2, "fresh salts should differ")
	assert.NotEqual(t, k1, k2, "different salts should produce different keys")
}

func TestDeriveKey_DifferentPasswords(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1, _, err := DeriveKey("password1", salt)
	require.NoError(t, err)
	k2, _, err := DeriveKey("password2", salt)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestDeriveKey_EmptyPassword(t *testing.T) {
	_, _, err := DeriveKey("", nil)
	assert.Error(t, err)
}

func TestDeriveKey_UsableByEngine(t *testing.T) {
	k, _, err := DeriveKey("escrow passphrase", []byte("fedcba9876543210"))
	require.NoError(t, err)

	e, err := NewEngine(k)
	require.NoError(t, err)

	token, err := e.Encrypt("hunter2")
	require.NoError(t, err)
	out, err := e.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", out)
}
