package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func fixedKey(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	plaintext := []byte("Hello, Cratos!")

	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted.Version != formatVersion {
		t.Fatalf("Version = %d, want %d", encrypted.Version, formatVersion)
	}
	if bytes.Equal(encrypted.Ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext, not actually encrypted")
	}

	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestDifferentNoncesPerCall(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	plaintext := []byte("same message")

	enc1, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt 1: %v", err)
	}
	enc2, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt 2: %v", err)
	}

	if bytes.Equal(enc1.Nonce, enc2.Nonce) {
		t.Fatal("nonces collided across calls")
	}
	if bytes.Equal(enc1.Ciphertext, enc2.Ciphertext) {
		t.Fatal("ciphertexts collided across calls")
	}

	if d, err := cipher.Decrypt(enc1); err != nil || !bytes.Equal(d, plaintext) {
		t.Fatalf("decrypt enc1: %v, %q", err, d)
	}
	if d, err := cipher.Decrypt(enc2); err != nil || !bytes.Equal(d, plaintext) {
		t.Fatalf("decrypt enc2: %v, %q", err, d)
	}
}

func TestWrongKeyFails(t *testing.T) {
	cipher1 := NewSessionCipher(fixedKey(1))
	cipher2 := NewSessionCipher(fixedKey(2))

	encrypted, err := cipher1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	_, err = cipher2.Decrypt(encrypted)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt with wrong key: err = %v, want ErrDecryptionFailed", err)
	}
}

func TestTamperedCiphertextFails(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	encrypted, err := cipher.Encrypt([]byte("original"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	encrypted.Ciphertext[0] ^= 0xFF

	_, err = cipher.Decrypt(encrypted)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt tampered ciphertext: err = %v, want ErrDecryptionFailed", err)
	}
}

func TestKeyExchangeAgreement(t *testing.T) {
	aliceSecret, alicePublic, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (alice): %v", err)
	}
	bobSecret, bobPublic, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (bob): %v", err)
	}

	aliceCipher, err := NewSessionCipherFromExchange(aliceSecret, bobPublic)
	if err != nil {
		t.Fatalf("alice exchange: %v", err)
	}
	bobCipher, err := NewSessionCipherFromExchange(bobSecret, alicePublic)
	if err != nil {
		t.Fatalf("bob exchange: %v", err)
	}

	message := []byte("Hello from Alice!")
	encrypted, err := aliceCipher.Encrypt(message)
	if err != nil {
		t.Fatalf("alice Encrypt: %v", err)
	}
	decrypted, err := bobCipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("bob Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, message) {
		t.Fatalf("decrypted = %q, want %q", decrypted, message)
	}

	response := []byte("Hello from Bob!")
	encrypted, err = bobCipher.Encrypt(response)
	if err != nil {
		t.Fatalf("bob Encrypt: %v", err)
	}
	decrypted, err = aliceCipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("alice Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, response) {
		t.Fatalf("decrypted = %q, want %q", decrypted, response)
	}
}

func TestEmptyPlaintext(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	encrypted, err := cipher.Encrypt([]byte{})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if len(decrypted) != 0 {
		t.Fatalf("decrypted = %q, want empty", decrypted)
	}
}

func TestLargePlaintext(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	large := bytes.Repeat([]byte{0xAB}, 1_000_000)

	encrypted, err := cipher.Encrypt(large)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, large) {
		t.Fatal("large plaintext round-trip mismatch")
	}
}

func TestInvalidVersionRejected(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	data := &EncryptedData{Version: 99, Nonce: make([]byte, nonceSize), Ciphertext: []byte{1, 2, 3}}

	_, err := cipher.Decrypt(data)
	var invalid *InvalidFormatError
	if !errors.As(err, &invalid) {
		t.Fatalf("Decrypt: err = %v, want *InvalidFormatError", err)
	}
}

func TestStringRedactsKey(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	s := cipher.String()
	if !strings.Contains(s, "REDACTED") {
		t.Fatalf("String() = %q, want it to contain REDACTED", s)
	}
	if strings.Contains(s, "42") {
		t.Fatalf("String() = %q, leaked key material", s)
	}
}

func TestCloseZeroesKey(t *testing.T) {
	cipher := NewSessionCipher(fixedKey(42))
	cipher.Close()
	for i, b := range cipher.key {
		if b != 0 {
			t.Fatalf("key byte %d = %d after Close, want 0", i, b)
		}
	}
}
