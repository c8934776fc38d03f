package users

import (
	"context"
)

type UserVerifier interface {
	// VerifyUser verifies the user using their username and password
	VerifyUser(username, password string) (bool, *User, error)
}

type userVerifier struct {
	userRepo UserRepository
	hasher   PasswordHasher
}

func NewUserVerifier(userRepo UserRepository, hasher PasswordHasher) *userVerifier {
	return &userVerifier{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

func (v *userVerifier) VerifyUser(username, password string) (bool, *User, error) {
	// Retrieve the user by username
	user, err := v.userRepo.GetByUsername(context.Background(), username)
	if err != nil {
		return false, nil, err
	}
	if user == nil {
		return false, nil, NewUserVerificationError(username) // don't specify the reason to avoid leaking information
	}

	if !v.hasher.VerifyPassword(password, user.PasswordHash, user.PasswordSalt) {
		return false, nil, NewUserVerificationError(username)
	}

	return true, user, nil
}
