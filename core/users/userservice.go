package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// CreateUserRequest contains the data for creating a new user
type CreateUserRequest struct {
	Username string
	Password string
}

// minPasswordLength is the shortest password accepted for new accounts
const minPasswordLength = 8

type UserService interface {
	// CreateUser creates a new user account with a hashed password
	CreateUser(req CreateUserRequest) (*User, error)
	// HasUsers reports whether any account exists yet
	HasUsers() (bool, error)
	// ChangePassword updates the password of an existing user
	ChangePassword(username, currentPassword, newPassword string) error
	// DeleteUser removes a user account
	DeleteUser(id string) error
}

type userService struct {
	logger logging.Logger
	repo   UserRepository
	hasher PasswordHasher
}

// NewUserService creates a new user service
func NewUserService(logger logging.Logger, repo UserRepository, hasher PasswordHasher) *userService {

	if logger == nil {
		logger = logging.NopLogger
	}

	return &userService{
		logger: logger,
		repo:   repo,
		hasher: hasher,
	}
}

func (s *userService) CreateUser(req CreateUserRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)

	if username == "" {
		return nil, NewUserValidationError("username cannot be empty")
	}
	if len(req.Password) < minPasswordLength {
		return nil, NewUserValidationError("password must be at least 8 characters")
	}

	s.logger.Info("Creating user", "username", username)

	ctx := context.Background()

	// Check if the username is already taken
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.logger.Error("Failed to check for existing user", err)
		return nil, err
	}
	if existing != nil {
		return nil, NewUserAlreadyExistsError(username)
	}

	hash, salt, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", err)
		return nil, err
	}

	now := time.Now().UTC()

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Add(ctx, user); err != nil {
		s.logger.Error("Failed to add user", err)
		return nil, err
	}

	return user, nil
}

func (s *userService) HasUsers() (bool, error) {
	users, err := s.repo.GetAll(context.Background())
	if err != nil {
		return false, err
	}

	return len(users) > 0, nil
}

func (s *userService) ChangePassword(username, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return NewUserValidationError("password must be at least 8 characters")
	}

	ctx := context.Background()

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return NewUserVerificationError(username) // don't specify the reason to avoid leaking information
	}

	if !s.hasher.VerifyPassword(currentPassword, user.PasswordHash, user.PasswordSalt) {
		return NewUserVerificationError(username)
	}

	hash, salt, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", err)
		return err
	}

	user.PasswordHash = hash
	user.PasswordSalt = salt
	user.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("Failed to update user", err)
		return err
	}

	s.logger.Info("Changed password", "username", username)
	return nil
}

func (s *userService) DeleteUser(id string) error {
	return s.repo.Delete(context.Background(), id)
}
