package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize      = 32
	keySize       = 32
	kdfIterations = 100000

	// credentialFileVersion is bumped whenever the record layout changes
	credentialFileVersion = 1
)

// PassphraseEnv overrides the generated passphrase file
const PassphraseEnv = "GMDAILY_PASSPHRASE"

// ErrUnsupportedFormat is returned for credential files this build cannot read
var ErrUnsupportedFormat = errors.New("unsupported credential file format")

// EncryptedFileStore keeps accounts in a JSON file. The account name,
// username and question id stay readable; the cookie, password and security
// answer of each account are sealed with AES-GCM under a PBKDF2 key, with
// the account name as associated data so records cannot be swapped.
type EncryptedFileStore struct {
	path       string
	passphrase string

	mu      sync.RWMutex
	key     []byte
	keySalt string
}

type credentialFile struct {
	Version  int                      `json:"version"`
	Salt     string                   `json:"salt"`
	Accounts map[string]sealedAccount `json:"accounts"`
}

type sealedAccount struct {
	Username   string `json:"username,omitempty"`
	QuestionID int    `json:"question_id,omitempty"`
	// Secrets is base64(nonce || AES-GCM(accountSecrets))
	Secrets      string `json:"secrets"`
	LastModified int64  `json:"last_modified"`
}

type accountSecrets struct {
	Cookie   string `json:"cookie,omitempty"`
	Password string `json:"password,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// NewEncryptedFileStore creates the store, generating a passphrase on first use
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	passphrase, err := loadPassphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: filePath, passphrase: passphrase}, nil
}

// Store seals and saves an account, replacing any record of the same name
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	if !account.Usable() {
		return fmt.Errorf("%w: %s has neither a cookie nor a username and password", ErrInvalidCredentials, account.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return err
	}
	if file.Salt == "" {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		file.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	rec, err := e.seal(file.Salt, account)
	if err != nil {
		return err
	}
	file.Accounts[account.Name] = rec
	return e.write(file)
}

// Retrieve opens the named account
func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return nil, err
	}
	rec, ok := file.Accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return e.open(file.Salt, name, rec)
}

// List opens every account, sorted by name
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.Accounts))
	for name := range file.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	accounts := make([]*Account, 0, len(names))
	for _, name := range names {
		account, err := e.open(file.Salt, name, file.Accounts[name])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete removes an account; the file goes with the last one
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := file.Accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(file.Accounts, name)

	if len(file.Accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.write(file)
}

// Exists reports whether a record is present without opening it
func (e *EncryptedFileStore) Exists(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	file, err := e.read()
	if err != nil {
		return false
	}
	_, ok := file.Accounts[name]
	return ok
}

// read loads the credential file. A missing file is an empty store.
func (e *EncryptedFileStore) read() (*credentialFile, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return &credentialFile{Version: credentialFileVersion, Accounts: make(map[string]sealedAccount)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}

	var file credentialFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", e.path, err)
	}
	if file.Version != credentialFileVersion {
		return nil, fmt.Errorf("%w: %s has version %d, want %d; remove it and run `gmdaily auth add` again",
			ErrUnsupportedFormat, e.path, file.Version, credentialFileVersion)
	}
	if file.Accounts == nil {
		file.Accounts = make(map[string]sealedAccount)
	}
	return &file, nil
}

// write atomically replaces the credential file
func (e *EncryptedFileStore) write(file *credentialFile) error {
	file.Version = credentialFileVersion
	content, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential file: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// keyFor derives the file key once per salt
func (e *EncryptedFileStore) keyFor(salt string) ([]byte, error) {
	if e.key != nil && e.keySalt == salt {
		return e.key, nil
	}
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil || len(raw) != saltSize {
		return nil, fmt.Errorf("%w: bad salt in %s", ErrUnsupportedFormat, e.path)
	}
	e.key = pbkdf2.Key([]byte(e.passphrase), raw, kdfIterations, keySize, sha256.New)
	e.keySalt = salt
	return e.key, nil
}

func (e *EncryptedFileStore) seal(salt string, account *Account) (sealedAccount, error) {
	key, err := e.keyFor(salt)
	if err != nil {
		return sealedAccount{}, err
	}
	plain, err := json.Marshal(accountSecrets{
		Cookie:   account.Cookie,
		Password: account.Password,
		Answer:   account.Answer,
	})
	if err != nil {
		return sealedAccount{}, err
	}
	sealed, err := sealGCM(key, plain, []byte(account.Name))
	if err != nil {
		return sealedAccount{}, fmt.Errorf("failed to encrypt %s: %w", account.Name, err)
	}
	return sealedAccount{
		Username:     account.Username,
		QuestionID:   account.QuestionID,
		Secrets:      base64.StdEncoding.EncodeToString(sealed),
		LastModified: account.LastModified.Unix(),
	}, nil
}

func (e *EncryptedFileStore) open(salt, name string, rec sealedAccount) (*Account, error) {
	key, err := e.keyFor(salt)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(rec.Secrets)
	if err != nil {
		return nil, fmt.Errorf("%w: secrets of %s are not base64", ErrUnsupportedFormat, name)
	}
	plain, err := openGCM(key, sealed, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s (wrong %s?): %w", name, PassphraseEnv, err)
	}
	var secrets accountSecrets
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets of %s: %w", name, err)
	}

	account := &Account{
		Name:       name,
		Cookie:     secrets.Cookie,
		Username:   rec.Username,
		Password:   secrets.Password,
		QuestionID: rec.QuestionID,
		Answer:     secrets.Answer,
	}
	if rec.LastModified > 0 {
		account.LastModified = time.Unix(rec.LastModified, 0)
	}
	return account, nil
}

func loadPassphrase(dir string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	file := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(file); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(file, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func sealGCM(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func openGCM(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, aad)
}
