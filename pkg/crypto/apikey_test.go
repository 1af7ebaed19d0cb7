package crypto

import (
	"strings"
	"testing"
)

const testKey = "dGVzdGtleXRlc3RrZXl0ZXN0a2V5dGVzdGtleTEy" // base64 of 30 bytes, falls back to passphrase path

func TestNewAPIKeyCipher_EmptyKey(t *testing.T) {
	if _, err := NewAPIKeyCipher(""); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cipher, err := NewAPIKeyCipher("some operator passphrase")
	if err != nil {
		t.Fatalf("NewAPIKeyCipher failed: %v", err)
	}

	plaintext := "glide-api-key-5f2d8a"
	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if encrypted == plaintext {
		t.Error("ciphertext must differ from plaintext")
	}

	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestEncrypt_EmptyPassesThrough(t *testing.T) {
	cipher, _ := NewAPIKeyCipher(testKey)

	encrypted, err := cipher.Encrypt("")
	if err != nil || encrypted != "" {
		t.Errorf("expected empty passthrough, got %q, %v", encrypted, err)
	}

	decrypted, err := cipher.Decrypt("")
	if err != nil || decrypted != "" {
		t.Errorf("expected empty passthrough, got %q, %v", decrypted, err)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	cipher, _ := NewAPIKeyCipher(testKey)

	first, err := cipher.Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cipher.Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("random nonce must make identical plaintexts encrypt differently")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	cipherA, _ := NewAPIKeyCipher("key-a")
	cipherB, _ := NewAPIKeyCipher("key-b")

	encrypted, err := cipherA.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cipherB.Decrypt(encrypted); err == nil || !strings.Contains(err.Error(), "decryption failed") {
		t.Errorf("expected authentication failure, got %v", err)
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	cipher, _ := NewAPIKeyCipher(testKey)

	if _, err := cipher.Decrypt("not base64 at all!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := cipher.Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
