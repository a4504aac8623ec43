package backup

import (
	"bytes"
	"path/filepath"
	"testing"

	"inkwell/internal/config"
)

func newTestEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.BackupConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "inkwell.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "inkwell.key"),
	})
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	e := newTestEncryptor(t)

	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}
	if err := e.Setup("correct horse battery staple"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if !e.IsConfigured() {
		t.Fatal("IsConfigured() = false after Setup")
	}

	plaintext := []byte("ledger bytes")
	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	d, err := e.Unlock("correct horse battery staple")
	if err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}

	var decrypted bytes.Buffer
	if err := d.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	e := newTestEncryptor(t)
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	if _, err := e.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase should fail")
	}
}
