package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// keyDerivationMessage is signed with the user's SSH key; the hash of the
// signature is the AES key. Changing it orphans every existing store.
const keyDerivationMessage = "mcpchat-encryption-key-derivation-v1"

// defaultSSHKeyNames are tried in order when security.ssh_key_path is unset.
var defaultSSHKeyNames = []string{"mcpchat_ed25519", "id_ed25519", "id_rsa"}

// sshCipher seals the credential store with AES-256-GCM under a key derived
// from an SSH private key. Only keys with deterministic signatures (ed25519,
// RSA PKCS#1 v1.5) derive the same key twice.
type sshCipher struct {
	aead cipher.AEAD
}

func newSSHCipher(keyPath, passphrase string) (*sshCipher, error) {
	if keyPath == "" {
		return nil, errors.New("no SSH key configured (set security.ssh_key_path)")
	}
	signer, err := loadSigner(keyPath, passphrase)
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(rand.Reader, []byte(keyDerivationMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	key := sha256.Sum256(sig.Blob)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sshCipher{aead: aead}, nil
}

// loadSigner parses the private key at path, using passphrase only when the
// key is encrypted.
func loadSigner(path, passphrase string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return signer, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("invalid SSH key %s: %w", path, err)
	case passphrase == "":
		return nil, fmt.Errorf("SSH key %s is encrypted: set MCPCHAT_SSH_PASSPHRASE", path)
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}

// seal returns nonce || ciphertext.
func (c *sshCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *sshCipher) open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// FindSSHKeys returns the private keys in ~/.ssh that can back the
// encrypted store, best candidate first.
func FindSSHKeys() []string {
	sshDir := filepath.Join(GetHomeDir(), ".ssh")

	var found []string
	for _, name := range defaultSSHKeyNames {
		path := filepath.Join(sshDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if bytes.Contains(data, []byte("PRIVATE KEY")) {
			found = append(found, path)
		}
	}
	return found
}
