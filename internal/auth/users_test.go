package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/pkg/model"
)

type memUserStore struct {
	users   []model.User
	saveErr error
}

func (m *memUserStore) LoadUsers(context.Context) ([]model.User, error) {
	return m.users, nil
}

func (m *memUserStore) SaveUsers(_ context.Context, users []model.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.users = append([]model.User(nil), users...)
	return nil
}

type memPortfolioStore struct {
	saved   map[int]*model.Portfolio
	saveErr error
}

func (m *memPortfolioStore) LoadPortfolios(context.Context) (map[int]*model.Portfolio, error) {
	if m.saved == nil {
		return make(map[int]*model.Portfolio), nil
	}
	return m.saved, nil
}

func (m *memPortfolioStore) SavePortfolios(_ context.Context, portfolios map[int]*model.Portfolio) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = portfolios
	return nil
}

func newTestService(t *testing.T, us *memUserStore, ps *memPortfolioStore) *Service {
	t.Helper()
	ctx := context.Background()
	book, err := ledger.NewBook(ctx, zap.NewNop(), ps)
	require.NoError(t, err)
	s, err := NewService(ctx, zap.NewNop(), us, book)
	require.NoError(t, err)
	return s
}

func TestRegisterAndLogin(t *testing.T) {
	us := &memUserStore{}
	ps := &memPortfolioStore{}
	s := newTestService(t, us, ps)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, u.UserID)
	assert.NotEqual(t, "secret", u.HashedPassword)
	assert.Len(t, u.Salt, 16, "8 random bytes, hex encoded")
	require.Contains(t, ps.saved, 1, "registration creates an empty portfolio")

	got, err := s.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	cur, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "alice", cur.Username)
}

func TestRegisterSequentialIDs(t *testing.T) {
	s := newTestService(t, &memUserStore{}, &memPortfolioStore{})
	ctx := context.Background()

	u1, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	u2, err := s.Register(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, u1.UserID+1, u2.UserID)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t, &memUserStore{}, &memPortfolioStore{})
	ctx := context.Background()

	_, err := s.Register(ctx, "ab", "secret")
	assert.Error(t, err, "username too short")

	_, err = s.Register(ctx, "has space", "secret")
	assert.Error(t, err, "username not alphanumeric")

	_, err = s.Register(ctx, "alice", "abc")
	assert.Error(t, err, "password too short")

	_, err = s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice", "other")
	assert.Error(t, err, "duplicate username")
}

func TestRegisterRollsBackUserOnPortfolioFailure(t *testing.T) {
	us := &memUserStore{}
	ps := &memPortfolioStore{saveErr: errors.New("disk full")}
	s := newTestService(t, us, ps)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "secret")
	require.Error(t, err)
	assert.Empty(t, us.users, "user record rolled back when portfolio save fails")

	ps.saveErr = nil
	u, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, u.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestService(t, &memUserStore{}, &memPortfolioStore{})
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Current()
	var unauth *UserNotAuthenticatedError
	assert.ErrorAs(t, err, &unauth)
}

func TestLogout(t *testing.T) {
	s := newTestService(t, &memUserStore{}, &memPortfolioStore{})
	ctx := context.Background()

	var unauth *UserNotAuthenticatedError
	require.ErrorAs(t, s.Logout(), &unauth)

	_, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = s.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, s.Logout())
	_, err = s.Current()
	assert.ErrorAs(t, err, &unauth)
}

func TestLoginSurvivesReload(t *testing.T) {
	us := &memUserStore{}
	ps := &memPortfolioStore{}
	s := newTestService(t, us, ps)
	_, err := s.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	// fresh service over the same persisted users
	s2 := newTestService(t, us, ps)
	_, err = s2.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
}
