package driven

// Cipher defines the driven port for authenticated encryption of secret
// strings. Empty input maps to empty output on both sides without error.
type Cipher interface {
	// Encrypt returns a self-describing ciphertext token for plaintext.
	Encrypt(plaintext string) (string, error)

	// Decrypt returns the plaintext for token. Any malformed, tampered or
	// foreign-key token yields an error matching model.ErrDecryption.
	Decrypt(token string) (string, error)
}
