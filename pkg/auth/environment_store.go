package auth

import (
	"os"
	"time"
)

const (
	UsernameEnv = "IGHARVEST_USERNAME"
	PasswordEnv = "IGHARVEST_PASSWORD"
)

// EnvironmentStore reads a single login from IGHARVEST_USERNAME and
// IGHARVEST_PASSWORD. It is read-only.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment login if it matches username. An empty
// username matches whatever is set.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	user := os.Getenv(UsernameEnv)
	pass := os.Getenv(PasswordEnv)
	if user == "" || pass == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != user {
		return nil, ErrCredentialsNotFound
	}
	return &Account{Username: user, Password: pass, LastModified: time.Time{}}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
