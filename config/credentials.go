package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// SecurityMethod selects how the credential store is kept on disk.
type SecurityMethod string

const (
	// SecurityPlainText writes credentials.toml with 0600 permissions.
	SecurityPlainText SecurityMethod = "plaintext"
	// SecuritySSHKey writes credentials.enc sealed with a key derived from
	// the user's SSH key.
	SecuritySSHKey SecurityMethod = "ssh_key"
)

const (
	plainCredentialsFile  = "credentials.toml"
	sealedCredentialsFile = "credentials.enc"
)

// CredentialStore holds API keys by provider id. Keys from the environment
// take precedence and never pass through here.
type CredentialStore struct {
	method     SecurityMethod
	keys       map[string]string
	sshKeyPath string
	passphrase string
	cipher     *sshCipher
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:     method,
		keys:       make(map[string]string),
		sshKeyPath: sshKeyPath,
	}
}

// SetPassphrase unlocks an encrypted SSH key on the next Load or Save.
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.passphrase = passphrase
	c.cipher = nil
}

// Load reads the store from dataDir. A missing file is an empty store.
func (c *CredentialStore) Load(dataDir string) error {
	var (
		keys map[string]string
		err  error
	)
	switch c.method {
	case SecurityPlainText:
		keys, err = readPlainCredentials(filepath.Join(dataDir, plainCredentialsFile))
	case SecuritySSHKey:
		keys, err = c.readSealedCredentials(filepath.Join(dataDir, sealedCredentialsFile))
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}
	c.keys = keys
	return nil
}

// Save writes the store to dataDir with 0600 permissions.
func (c *CredentialStore) Save(dataDir string) error {
	var (
		data []byte
		name string
	)
	switch c.method {
	case SecurityPlainText:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(credentialsDoc{Credentials: c.keys}); err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}
		data, name = buf.Bytes(), plainCredentialsFile

	case SecuritySSHKey:
		if err := c.unlock(); err != nil {
			return err
		}
		plain, err := json.Marshal(c.keys)
		if err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}
		if data, err = c.cipher.seal(plain); err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		name = sealedCredentialsFile

	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}

	if err := os.WriteFile(filepath.Join(dataDir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

func (c *CredentialStore) Get(providerID string) string {
	return c.keys[providerID]
}

func (c *CredentialStore) Set(providerID, apiKey string) error {
	if providerID == "" {
		return fmt.Errorf("provider id is required")
	}
	c.keys[providerID] = apiKey
	return nil
}

func (c *CredentialStore) Delete(providerID string) error {
	delete(c.keys, providerID)
	return nil
}

// IDs returns the providers that have a stored key, sorted.
func (c *CredentialStore) IDs() []string {
	ids := make([]string, 0, len(c.keys))
	for id, key := range c.keys {
		if key != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

type credentialsDoc struct {
	Credentials map[string]string `toml:"credentials"`
}

func readPlainCredentials(path string) (map[string]string, error) {
	if !FileExists(path) {
		return make(map[string]string), nil
	}
	var doc credentialsDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if doc.Credentials == nil {
		doc.Credentials = make(map[string]string)
	}
	return doc.Credentials, nil
}

func (c *CredentialStore) readSealedCredentials(path string) (map[string]string, error) {
	if !FileExists(path) {
		return make(map[string]string), nil
	}
	if err := c.unlock(); err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}
	plain, err := c.cipher.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	keys := make(map[string]string)
	if err := json.Unmarshal(plain, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}
	return keys, nil
}

// unlock derives the cipher once per passphrase.
func (c *CredentialStore) unlock() error {
	if c.cipher != nil {
		return nil
	}
	ciph, err := newSSHCipher(c.sshKeyPath, c.passphrase)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.cipher = ciph
	return nil
}
