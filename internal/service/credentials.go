package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/novachat/novachat/internal/config"
	"github.com/novachat/novachat/internal/domain"
)

// UserStore is the persistence surface the credential service needs.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// dummyHash is compared against when the username does not exist, so a failed
// login costs the same whether or not the user is known.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type CredentialService struct {
	users          UserStore
	passwordMinLen int
}

func NewCredentialService(users UserStore, passwordMinLen int) *CredentialService {
	return &CredentialService{users: users, passwordMinLen: passwordMinLen}
}

// Register creates a new user with a bcrypt password hash and returns its id.
func (s *CredentialService) Register(ctx context.Context, username, password string) (int64, error) {
	if err := validateUsername(username); err != nil {
		return 0, err
	}
	if len(password) < s.passwordMinLen {
		return 0, fmt.Errorf("password must be at least %d characters", s.passwordMinLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), config.BcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Authenticate verifies a username/password pair. Username matching is exact
// and case-sensitive.
func (s *CredentialService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return 0, domain.ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, domain.ErrInvalidCredentials
	}
	return user.ID, nil
}

func validateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if strings.ContainsAny(username, " \t") {
		return errors.New("username must not contain whitespace")
	}
	return nil
}
