// Package auth manages accounts and the active session: registration with
// salted password hashing, login/logout, and the current-user pointer.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/internal/store"
	"github.com/valutatrade/hub/pkg/model"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)

// UserNotAuthenticatedError is returned for operations requiring a session
// when nobody is logged in.
type UserNotAuthenticatedError struct{}

func (e *UserNotAuthenticatedError) Error() string {
	return "no active session: login first"
}

// ErrInvalidCredentials covers both unknown usernames and wrong passwords so
// responses never reveal which one failed.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password")

// ValidationError reports a rejected registration input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Service owns the user list and the single in-process session.
type Service struct {
	logger *zap.Logger
	store  store.UserStore
	book   *ledger.Book

	mu      sync.Mutex
	users   []model.User
	current *model.User
}

// NewService loads persisted users.
func NewService(ctx context.Context, logger *zap.Logger, userStore store.UserStore, book *ledger.Book) (*Service, error) {
	users, err := userStore.LoadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	logger.Info("auth.users_loaded", zap.Int("count", len(users)))
	return &Service{logger: logger, store: userStore, book: book, users: users}, nil
}

// Register creates an account with an empty portfolio. If the portfolio
// cannot be persisted the user record is rolled back so the two documents
// stay consistent.
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, &ValidationError{Msg: "username must be 3-20 alphanumeric characters"}
	}
	if len(password) < 4 {
		return nil, &ValidationError{Msg: "password must be at least 4 characters"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	maxID := 0
	for _, u := range s.users {
		if u.Username == username {
			return nil, &ValidationError{Msg: fmt.Sprintf("username %q is already taken", username)}
		}
		if u.UserID > maxID {
			maxID = u.UserID
		}
	}

	salt, err := newSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	user := model.User{
		UserID:           maxID + 1,
		Username:         username,
		HashedPassword:   hashPassword(password, salt),
		Salt:             salt,
		RegistrationDate: model.FormatTimestamp(time.Now()),
	}

	s.users = append(s.users, user)
	if err := s.store.SaveUsers(ctx, s.users); err != nil {
		s.users = s.users[:len(s.users)-1]
		return nil, fmt.Errorf("save users: %w", err)
	}

	if err := s.book.Create(ctx, user.UserID); err != nil {
		s.users = s.users[:len(s.users)-1]
		if serr := s.store.SaveUsers(ctx, s.users); serr != nil {
			s.logger.Error("auth.register_rollback_failed",
				zap.String("username", username),
				zap.Error(serr))
		}
		return nil, fmt.Errorf("create portfolio: %w", err)
	}

	s.logger.Info("auth.registered",
		zap.Int("user_id", user.UserID),
		zap.String("username", username))
	return &user, nil
}

// Login verifies credentials and makes the user the active session.
func (s *Service) Login(_ context.Context, username, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		u := &s.users[i]
		if u.Username != username {
			continue
		}
		if hashPassword(password, u.Salt) != u.HashedPassword {
			break
		}
		s.current = u
		s.logger.Info("auth.login", zap.String("username", username))
		return u, nil
	}
	s.logger.Warn("auth.login_failed", zap.String("username", username))
	return nil, ErrInvalidCredentials
}

// Logout clears the active session.
func (s *Service) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return &UserNotAuthenticatedError{}
	}
	s.logger.Info("auth.logout", zap.String("username", s.current.Username))
	s.current = nil
	return nil
}

// Current returns the logged-in user or UserNotAuthenticatedError.
func (s *Service) Current() (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, &UserNotAuthenticatedError{}
	}
	u := *s.current
	return &u, nil
}

// hashPassword is a salted SHA-256 digest, hex encoded.
func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// newSalt returns 8 random bytes as hex.
func newSalt() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
