package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

// AuthService encapsulates registration and login.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates an account. The username is trimmed; the password is used
// verbatim.
func (s *AuthService) Register(ctx context.Context, username, password string) (types.PublicUser, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.PublicUser{}, invalidInput("username and password required")
	}
	if len(password) > maxPasswordBytes {
		return types.PublicUser{}, invalidInput("password must be at most %d bytes", maxPasswordBytes)
	}

	// The unique index is authoritative; this pre-check skips a wasted hash.
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return types.PublicUser{}, ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.PublicUser{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return types.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.PublicUser{}, ErrConflict
		}
		return types.PublicUser{}, fmt.Errorf("create user: %w", err)
	}
	return user.Public(), nil
}

// Login checks credentials and issues a session token. Unknown usernames and
// wrong passwords both yield ErrUnauthorized after a full hash comparison.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, invalidInput("username and password required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.hasher.Compare(s.fallbackHash(), password)
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrUnauthorized
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{Token: token, User: user.Public()}, nil
}

// Me returns the account behind an authenticated identity.
func (s *AuthService) Me(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// fallbackHash is compared against when the username is unknown so that
// both login failures cost one hash comparison.
func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash("tasktrack-timing-equaliser")
		if err == nil {
			s.dummyHash = hashed
		}
	})
	return s.dummyHash
}
