package export

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

func TestDecodeRecipientKey(t *testing.T) {
	pub, _, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	validHex := hex.EncodeToString(pub[:])

	tests := []struct {
		name    string
		hexKey  string
		wantErr bool
	}{
		{"valid 32-byte key", validHex, false},
		{"not hex", "not-hex-at-all", true},
		{"wrong length", hex.EncodeToString([]byte("too short")), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := decodeRecipientKey(tt.hexKey)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hex.EncodeToString(key[:]) != tt.hexKey {
				t.Fatalf("decoded key does not round-trip")
			}
		})
	}
}

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.txt")
	content := []byte("export payload contents for compression test")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	svc := &Service{}
	gzPath, err := svc.compressFile(srcPath)
	if err != nil {
		t.Fatalf("compressFile failed: %v", err)
	}
	defer os.Remove(gzPath)

	if filepath.Ext(gzPath) != ".gz" {
		t.Fatalf("expected .gz suffix, got %s", gzPath)
	}

	info, err := os.Stat(gzPath)
	if err != nil {
		t.Fatalf("compressed file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("compressed file is empty")
	}
}

func TestEncryptFile_RoundTrip(t *testing.T) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate recipient key: %v", err)
	}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.txt")
	content := []byte("sensitive export payload")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	svc := &Service{}
	encPath, err := svc.encryptFile(srcPath, hex.EncodeToString(pub[:]))
	if err != nil {
		t.Fatalf("encryptFile failed: %v", err)
	}
	defer os.Remove(encPath)

	raw, err := os.ReadFile(encPath)
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}

	var envelope encryptedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}

	ephemeralPubBytes, err := hex.DecodeString(envelope.EphemeralPublicKey)
	if err != nil || len(ephemeralPubBytes) != 32 {
		t.Fatalf("invalid ephemeral public key in envelope")
	}
	var ephemeralPub [32]byte
	copy(ephemeralPub[:], ephemeralPubBytes)

	wrappedKey, err := hex.DecodeString(envelope.WrappedKey)
	if err != nil {
		t.Fatalf("invalid wrapped key hex: %v", err)
	}
	if len(wrappedKey) < 24 {
		t.Fatalf("wrapped key too short to contain a nonce prefix")
	}

	var boxNonce [24]byte
	copy(boxNonce[:], wrappedKey[:24])

	symmetricKey, ok := box.Open(nil, wrappedKey[24:], &boxNonce, &ephemeralPub, priv)
	if !ok {
		t.Fatalf("failed to unwrap symmetric key with recipient private key")
	}
	if len(symmetricKey) != 32 {
		t.Fatalf("expected 32-byte symmetric key, got %d bytes", len(symmetricKey))
	}

	if envelope.Ciphertext == "" || envelope.PayloadNonce == "" {
		t.Fatalf("envelope missing ciphertext or nonce")
	}

	payloadNonceBytes, err := hex.DecodeString(envelope.PayloadNonce)
	if err != nil || len(payloadNonceBytes) != 24 {
		t.Fatalf("invalid payload nonce in envelope")
	}
	var payloadNonce [24]byte
	copy(payloadNonce[:], payloadNonceBytes)

	ciphertext, err := hex.DecodeString(envelope.Ciphertext)
	if err != nil {
		t.Fatalf("invalid ciphertext hex: %v", err)
	}

	var key [32]byte
	copy(key[:], symmetricKey)
	plaintext, ok := secretbox.Open(nil, ciphertext, &payloadNonce, &key)
	if !ok {
		t.Fatalf("failed to decrypt payload with unwrapped symmetric key")
	}
	if !bytes.Equal(plaintext, content) {
		t.Fatalf("decrypted payload %q does not match original %q", plaintext, content)
	}
}

func TestEncryptFile_RejectsInvalidRecipientKey(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.txt")
	if err := os.WriteFile(srcPath, []byte("data"), 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	svc := &Service{}
	if _, err := svc.encryptFile(srcPath, "not-valid-hex"); err == nil {
		t.Fatalf("expected error for invalid recipient key")
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	svc := &Service{}
	attempts := 0

	err := svc.withRetry(func() error {
		attempts++
		if attempts < exportObjectRetries {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if attempts != exportObjectRetries {
		t.Fatalf("expected %d attempts, got %d", exportObjectRetries, attempts)
	}
}

func TestWithRetry_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	svc := &Service{}
	attempts := 0
	wantErr := errors.New("persistent failure")

	err := svc.withRetry(func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error to be returned, got: %v", err)
	}
	if attempts != exportObjectRetries {
		t.Fatalf("expected %d attempts, got %d", exportObjectRetries, attempts)
	}
}
