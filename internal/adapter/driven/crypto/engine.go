// Package crypto implements the authenticated encryption used for stored
// secrets and the key material it runs on.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Engine)(nil)

const (
	tokenVersion byte = 0x01
	headerLen         = 1 + 8 // version || issued_at
	nonceLen          = 12    // 96-bit nonce for GCM
	tagLen            = 16
	minTokenLen       = headerLen + nonceLen + tagLen
)

// tokenEncoding is strict so that no two encodings decode to the same bytes.
var tokenEncoding = base64.URLEncoding.Strict()

// TokenInfo describes an authenticated token.
type TokenInfo struct {
	Version  byte
	IssuedAt time.Time
}

// Engine encrypts and decrypts secret strings with AES-256-GCM.
//
// Token layout before base64url encoding:
//
//	[version:1][issued_at:8][nonce:12][ciphertext+tag:variable]
//
// version and issued_at are passed as associated data, so the GCM tag
// authenticates every byte of the token.
type Engine struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewEngine creates an Engine bound to key.
func NewEngine(key Key) (*Engine, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Engine{aead: aead, now: time.Now}, nil
}

// Encrypt returns a token for plaintext. Empty plaintext yields an empty token.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	buf := make([]byte, headerLen+nonceLen, headerLen+nonceLen+len(plaintext)+tagLen)
	buf[0] = tokenVersion
	binary.BigEndian.PutUint64(buf[1:headerLen], uint64(e.now().Unix()))

	nonce := buf[headerLen : headerLen+nonceLen]
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Seal appends ciphertext+tag after the header and nonce. dst must not
	// overlap the associated data, so the header is passed as a copy.
	aad := append([]byte(nil), buf[:headerLen]...)
	sealed := e.aead.Seal(buf, nonce, []byte(plaintext), aad)
	return tokenEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext for token. An empty token yields an empty
// plaintext. Every failure is a *model.DecryptionError.
func (e *Engine) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	plaintext, _, err := e.open(token)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Inspect authenticates token and reports its header.
func (e *Engine) Inspect(token string) (TokenInfo, error) {
	if token == "" {
		return TokenInfo{}, &model.DecryptionError{Msg: "empty token"}
	}
	plaintext, info, err := e.open(token)
	for i := range plaintext {
		plaintext[i] = 0
	}
	return info, err
}

func (e *Engine) open(token string) ([]byte, TokenInfo, error) {
	// The decoder skips CR and LF, which would make altered tokens decodable.
	if strings.ContainsAny(token, "\r\n") {
		return nil, TokenInfo{}, &model.DecryptionError{Msg: "malformed token"}
	}
	data, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, TokenInfo{}, &model.DecryptionError{Msg: "malformed token", Err: err}
	}
	if len(data) < minTokenLen {
		return nil, TokenInfo{}, &model.DecryptionError{Msg: "token too short"}
	}
	if data[0] != tokenVersion {
		return nil, TokenInfo{}, &model.DecryptionError{Msg: fmt.Sprintf("unsupported token version %d", data[0])}
	}

	header := data[:headerLen]
	nonce := data[headerLen : headerLen+nonceLen]
	plaintext, err := e.aead.Open(nil, nonce, data[headerLen+nonceLen:], header)
	if err != nil {
		return nil, TokenInfo{}, &model.DecryptionError{Msg: "authentication failed", Err: err}
	}

	info := TokenInfo{
		Version:  data[0],
		IssuedAt: time.Unix(int64(binary.BigEndian.Uint64(header[1:])), 0).UTC(),
	}
	return plaintext, info, nil
}
