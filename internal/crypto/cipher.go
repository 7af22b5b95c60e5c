// Package crypto implements the end-to-end session cipher: AES-256-GCM
// encryption with an X25519 + HKDF key exchange, so that anything this
// core persists or forwards on a session's behalf can be stored as an
// opaque blob rather than plaintext. Grounded on the original
// cratos-crypto crate (AES-256-GCM + X25519/HKDF, zeroized keys, fresh
// nonce per call) — spec.md §8 testable property 12.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	// hkdfInfo pins key derivation to this cipher's purpose, so a shared
	// secret reused elsewhere can never collide with a session key here.
	hkdfInfo = "cratos-session-e2e-v1"
	// formatVersion is the only EncryptedData.Version this cipher accepts.
	formatVersion = 1
)

// Sentinel errors mirroring the original crate's CryptoError enum.
var (
	ErrEncryptionFailed = errors.New("crypto: encryption failed")
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// InvalidFormatError reports an EncryptedData whose shape this cipher
// cannot decode, e.g. an unsupported Version.
type InvalidFormatError struct {
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("crypto: invalid format: %s", e.Reason)
}

// EncryptedData is the wire/storage bundle produced by Encrypt: everything
// needed to decrypt except the key.
type EncryptedData struct {
	Version    uint8  `json:"version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SessionCipher encrypts and decrypts on behalf of one session using a
// 256-bit key derived once, either supplied directly or via X25519 key
// exchange. The zero value is not usable; construct with NewSessionCipher
// or NewSessionCipherFromExchange.
type SessionCipher struct {
	key [keySize]byte
}

// NewSessionCipher builds a cipher from a raw 256-bit key.
func NewSessionCipher(key [keySize]byte) *SessionCipher {
	return &SessionCipher{key: key}
}

// NewSessionCipherFromExchange derives a session key from an X25519
// Diffie-Hellman exchange: ourSecret is this side's private scalar,
// theirPublic is the other side's public key. Both sides arrive at the
// same key by calling this with their own secret and the other's public
// key.
func NewSessionCipherFromExchange(ourSecret, theirPublic [keySize]byte) (*SessionCipher, error) {
	shared, err := curve25519.X25519(ourSecret[:], theirPublic[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: key exchange: %w", err)
	}
	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	var key [keySize]byte
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return nil, fmt.Errorf("crypto: derive session key: %w", err)
	}
	return &SessionCipher{key: key}, nil
}

// GenerateKeypair returns a fresh X25519 (secret, public) pair. The secret
// must stay on one side; the public key is sent to the other party.
func GenerateKeypair() (secret, public [keySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, secret[:]); err != nil {
		return secret, public, fmt.Errorf("crypto: generate secret: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return secret, public, fmt.Errorf("crypto: derive public key: %w", err)
	}
	copy(public[:], pub)
	return secret, public, nil
}

// Encrypt seals plaintext with a fresh random nonce, so encrypting the
// same plaintext twice yields different ciphertext (semantic security).
func (c *SessionCipher) Encrypt(plaintext []byte) (*EncryptedData, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return &EncryptedData{Version: formatVersion, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt opens an EncryptedData bundle, failing on a wrong key, a
// tampered ciphertext, or a reused/mismatched nonce (GCM's authentication
// tag catches all three uniformly).
func (c *SessionCipher) Decrypt(data *EncryptedData) ([]byte, error) {
	if data.Version != formatVersion {
		return nil, &InvalidFormatError{Reason: fmt.Sprintf("unsupported version: %d", data.Version)}
	}
	if len(data.Nonce) != nonceSize {
		return nil, &InvalidFormatError{Reason: fmt.Sprintf("nonce must be %d bytes, got %d", nonceSize, len(data.Nonce))}
	}
	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := aead.Open(nil, data.Nonce, data.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Close zeroes the session key. Callers that hold a SessionCipher for the
// lifetime of a session should defer Close when the session ends.
func (c *SessionCipher) Close() {
	for i := range c.key {
		c.key[i] = 0
	}
}

// String redacts the key, matching the original crate's Debug impl.
func (c *SessionCipher) String() string {
	return "SessionCipher{key: [REDACTED]}"
}

func (c *SessionCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

