// Package authtest provides an in-memory credential store for tests of
// packages that read stored accounts.
package authtest

import (
	"sort"
	"sync"

	"gmdaily/pkg/auth"
)

// Op names a store operation for failure injection
type Op string

const (
	OpStore    Op = "store"
	OpRetrieve Op = "retrieve"
	OpList     Op = "list"
	OpDelete   Op = "delete"
)

// Store is an in-memory auth.CredentialStore. It applies the same
// validation as the file store and hands out copies only.
type Store struct {
	mu       sync.Mutex
	accounts map[string]auth.Account
	failures map[Op]error
}

var _ auth.CredentialStore = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		accounts: make(map[string]auth.Account),
		failures: make(map[Op]error),
	}
}

// NewManager returns a manager over a single empty Store
func NewManager() (*auth.Manager, *Store) {
	s := New()
	return auth.NewManagerWithStores(s), s
}

// Fail makes every later call of op return err; a nil err clears it
func (s *Store) Fail(op Op, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
	} else {
		s.failures[op] = err
	}
	return s
}

// Store implements auth.CredentialStore
func (s *Store) Store(account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpStore]; err != nil {
		return err
	}
	if account == nil || account.Name == "" || !account.Usable() {
		return auth.ErrInvalidCredentials
	}
	s.accounts[account.Name] = *account
	return nil
}

// Retrieve implements auth.CredentialStore
func (s *Store) Retrieve(name string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpRetrieve]; err != nil {
		return nil, err
	}
	account, ok := s.accounts[name]
	if !ok {
		return nil, auth.ErrCredentialsNotFound
	}
	return &account, nil
}

// List implements auth.CredentialStore; accounts come back sorted by name
func (s *Store) List() ([]*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpList]; err != nil {
		return nil, err
	}
	out := make([]*auth.Account, 0, len(s.accounts))
	for _, name := range s.names() {
		account := s.accounts[name]
		out = append(out, &account)
	}
	return out, nil
}

// Delete implements auth.CredentialStore
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpDelete]; err != nil {
		return err
	}
	if _, ok := s.accounts[name]; !ok {
		return auth.ErrCredentialsNotFound
	}
	delete(s.accounts, name)
	return nil
}

// Exists implements auth.CredentialStore
func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[name]
	return ok
}

// Names lists the stored account names in order
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names()
}

func (s *Store) names() []string {
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
