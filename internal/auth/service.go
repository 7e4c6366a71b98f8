package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	group shared.OwnershipGroup
}

// NewService constructs a new Service. Only members of group may sign in.
func NewService(repo Repository, group shared.OwnershipGroup) *Service {
	return &Service{repo: repo, group: group}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !s.group.Contains(user.ID) {
		return nil, shared.ErrNotPartner
	}
	return user, nil
}

// Profile loads the public view of a user.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{ID: user.ID, Email: user.Email, FullName: user.FullName, Partner: s.group.Contains(user.ID)}, nil
}

// IsPartner reports whether the user belongs to the firm.
func (s *Service) IsPartner(userID int64) bool {
	return s.group.Contains(userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// HashPassword returns a bcrypt hash suitable for the users table.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
