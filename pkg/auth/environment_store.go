package auth

import (
	"os"
	"strconv"
	"time"
)

// EnvAccountName is the name given to the account read from the environment
const EnvAccountName = "env"

// EnvironmentStore is a read-only store over GMDAILY_* variables
type EnvironmentStore struct {
	getenv func(string) string
}

// NewEnvironmentStore reads the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) read() *Account {
	account := &Account{
		Name:         EnvAccountName,
		Cookie:       e.getenv("GMDAILY_COOKIE"),
		Username:     e.getenv("GMDAILY_USERNAME"),
		Password:     e.getenv("GMDAILY_PASSWORD"),
		Answer:       e.getenv("GMDAILY_ANSWER"),
		LastModified: time.Time{},
	}
	if id, err := strconv.Atoi(e.getenv("GMDAILY_QUESTION_ID")); err == nil {
		account.QuestionID = id
	}
	return account
}

// Retrieve returns the environment account for EnvAccountName or ""
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	if name != "" && name != EnvAccountName {
		return nil, ErrCredentialsNotFound
	}
	account := e.read()
	if !account.Usable() {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

// List returns the environment account when one is configured
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
