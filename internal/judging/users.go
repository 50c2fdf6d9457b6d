package judging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/storage"
)

// RegisterInput describes a new user
type RegisterInput struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// LoginResult is returned by Authenticate
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Register creates a user with a bcrypt-hashed password
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, newError(ErrValidation, "username is required")
	}
	if !in.Role.IsValid() {
		return nil, newError(ErrValidation, "invalid role: %q", in.Role)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, validationError(err)
		}
		return nil, newError(ErrValidation, "invalid password")
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.now(),
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicateUsername) {
			return nil, newError(ErrConflict, "username already taken")
		}
		return nil, storageError("create user", err)
	}

	slog.Info("user registered", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// Authenticate checks credentials and issues an access token
func (s *Service) Authenticate(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, newError(ErrUnauthorized, "authentication is not configured")
	}

	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, storageError("get user", err)
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, newError(ErrUnauthorized, "invalid username or password")
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		slog.Error("failed to issue token", "user_id", u.ID, "error", err)
		return nil, newError(ErrUnauthorized, "failed to issue token")
	}

	return &LoginResult{Token: token, ExpiresAt: expires, User: u}, nil
}

// GetUser returns a user by ID
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, storageError("get user", err)
	}
	if u == nil {
		return nil, newError(ErrNotFound, "user not found")
	}
	return u, nil
}

// ListUsers returns all users
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}
