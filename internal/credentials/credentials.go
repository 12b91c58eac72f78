// Package credentials keeps the GitHub token in the OS credential store.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	Service = "github"
	Account = "token"
)

var (
	// ErrEmptyToken is returned when a blank token is entered.
	ErrEmptyToken = errors.New("token must not be empty")
	// ErrMalformedToken is returned for tokens containing whitespace.
	ErrMalformedToken = errors.New("token must not contain whitespace")
)

// Store reads and writes the token under the github/token keyring entry.
type Store struct {
	service string
	account string
}

func New() *Store {
	return &Store{service: Service, account: Account}
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token() (string, error) {
	token, err := keyring.Get(s.service, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token from keyring: %w", err)
	}
	return token, nil
}

// SetToken stores token, or removes the stored one when token is empty.
func (s *Store) SetToken(token string) error {
	if token == "" {
		err := keyring.Delete(s.service, s.account)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete token from keyring: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.service, s.account, token); err != nil {
		return fmt.Errorf("write token to keyring: %w", err)
	}
	return nil
}

// ValidateToken trims input and rejects values that cannot be a token.
func ValidateToken(input string) (string, error) {
	token := strings.TrimSpace(input)
	if token == "" {
		return "", ErrEmptyToken
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return "", ErrMalformedToken
	}
	return token, nil
}
