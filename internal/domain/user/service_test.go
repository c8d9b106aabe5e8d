package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/quickcart-backend/internal/config"
	"github.com/your-org/quickcart-backend/internal/pkg/auth"
	"github.com/your-org/quickcart-backend/internal/pkg/logger"
	"github.com/your-org/quickcart-backend/internal/testutil"
)

func setupService(t *testing.T) (*Service, *auth.JWTManager) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "quickcart-test"},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{BcryptCost: 4},
	}
	db := testutil.NewSQLiteDB(t, &User{})
	tokens := auth.NewJWTManager(cfg)
	return NewService(db, auth.NewPasswordManager(cfg), tokens, logger.Discard()), tokens
}

func TestRegisterAndLogin(t *testing.T) {
	s, tokens := setupService(t)
	ctx := context.Background()

	resp, err := s.Register(ctx, &RegisterRequest{Email: " Ada@Example.com", Password: "Engine42x", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.AccessToken)

	claims, err := tokens.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	login, err := s.Login(ctx, &LoginRequest{Email: "ADA@example.com", Password: "Engine42x"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
	assert.NotNil(t, login.User.LastLoginAt)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, &RegisterRequest{Email: "a@b.co", Password: "Engine42x", Name: "A"})
	require.NoError(t, err)

	_, err = s.Register(ctx, &RegisterRequest{Email: "A@B.CO", Password: "Engine42x", Name: "B"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_WeakPassword(t *testing.T) {
	s, _ := setupService(t)

	_, err := s.Register(context.Background(), &RegisterRequest{Email: "a@b.co", Password: "weak", Name: "A"})
	assert.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, &RegisterRequest{Email: "a@b.co", Password: "Engine42x", Name: "A"})
	require.NoError(t, err)

	_, err = s.Login(ctx, &LoginRequest{Email: "a@b.co", Password: "Wrong42xx"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, &LoginRequest{Email: "nobody@b.co", Password: "Engine42x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	resp, err := s.Register(ctx, &RegisterRequest{Email: "a@b.co", Password: "Engine42x", Name: "A"})
	require.NoError(t, err)

	refreshed, err := s.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, refreshed.User.ID)

	_, err = s.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = s.GetProfile(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
