package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/seekd/seekd/pkg/config"
)

// ErrInvalidCredentials is returned for an unknown user or wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Users validates operator credentials against the configured accounts.
type Users struct {
	hashes map[string]string
}

// NewUsers builds the credential checker from the API user list.
func NewUsers(users []config.APIUserConfig) *Users {
	hashes := make(map[string]string, len(users))
	for _, u := range users {
		hashes[strings.ToLower(u.Username)] = u.PasswordHash
	}
	return &Users{hashes: hashes}
}

// Empty reports whether no operator accounts are configured.
func (u *Users) Empty() bool { return len(u.hashes) == 0 }

// Validate checks a username/password pair. Unknown users burn a bcrypt
// comparison anyway so the response time does not reveal which usernames
// exist.
func (u *Users) Validate(username, password string) error {
	hash, ok := u.hashes[strings.ToLower(username)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
			[]byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for the configuration file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
