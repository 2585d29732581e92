package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

// Test key generated with: openssl rand -base64 32
const testKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM=" // "test-key-for-unit-tests-32-bytes"

func TestNewSecretCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid 32-byte base64 key", key: testKey},
		{name: "empty key", key: "", wantErr: true},
		{name: "passphrase hashed to 32 bytes", key: "my-simple-passphrase"},
		{name: "short base64 hashed to 32 bytes", key: base64.StdEncoding.EncodeToString([]byte("sixteen-byte-key"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewSecretCipher(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Error("expected non-nil cipher")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewSecretCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	passwords := []string{
		"",
		"hunter2",
		"p@ssw0rd with spaces\nand newlines",
		"пароль-テスト-🔑",
		strings.Repeat("x", 500),
	}

	for _, pw := range passwords {
		encrypted, err := c.Encrypt(pw)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", pw, err)
		}
		if pw == "" {
			if encrypted != "" {
				t.Errorf("empty password should stay empty, got %q", encrypted)
			}
			continue
		}
		if encrypted == pw {
			t.Error("ciphertext should differ from plaintext")
		}
		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if decrypted != pw {
			t.Errorf("round-trip mismatch: got %q, want %q", decrypted, pw)
		}
	}
}

func TestRoundTripAcrossInstances(t *testing.T) {
	// Two ciphers built from the same key must be interchangeable. This models
	// parallel worker processes and restarts sharing one deployment key.
	c1, err := NewSecretCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create first cipher: %v", err)
	}
	c2, err := NewSecretCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create second cipher: %v", err)
	}

	encrypted, err := c1.Encrypt("group-db-password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	decrypted, err := c2.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt with second instance failed: %v", err)
	}
	if decrypted != "group-db-password" {
		t.Errorf("got %q, want %q", decrypted, "group-db-password")
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	c1, err := NewSecretCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create first cipher: %v", err)
	}
	c2, err := NewSecretCipher("a-completely-different-key")
	if err != nil {
		t.Fatalf("failed to create second cipher: %v", err)
	}

	encrypted, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Must fail loudly, never return wrong plaintext.
	_, err = c2.Decrypt(encrypted)
	if err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
	if !strings.Contains(err.Error(), "decryption failed") {
		t.Errorf("expected 'decryption failed' error, got: %v", err)
	}
}

func TestEncryptProducesUniqueNonces(t *testing.T) {
	c, err := NewSecretCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		encrypted, err := c.Encrypt("same-plaintext")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seen[encrypted] {
			t.Error("encryption produced duplicate ciphertext (nonce reuse)")
		}
		seen[encrypted] = true
	}
}

func TestDecryptInvalidInput(t *testing.T) {
	c, _ := NewSecretCipher(testKey)

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty returns empty", input: "", wantErr: ""},
		{name: "invalid base64", input: "not-valid-base64!!!", wantErr: "base64 decode failed"},
		{name: "too short", input: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: "ciphertext too short"},
		{name: "corrupted", input: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 50))), wantErr: "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
