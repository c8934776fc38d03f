package users

// Error types for user operations
type UserValidationError struct {
	Message string
}

type UserAlreadyExistsError struct {
	Username string
}

type UserVerificationError struct {
	Username string
}

func (e *UserValidationError) Error() string {
	return "User validation failed: " + e.Message
}

func (e *UserAlreadyExistsError) Error() string {
	return "User already exists: " + e.Username
}

func (e *UserVerificationError) Error() string {
	return "User verification failed for username: " + e.Username
}

// helper functions for error handling

func IsUserValidationError(err error) bool {
	_, ok := err.(*UserValidationError)
	return ok
}

func IsUserAlreadyExistsError(err error) bool {
	_, ok := err.(*UserAlreadyExistsError)
	return ok
}

func IsUserVerificationError(err error) bool {
	_, ok := err.(*UserVerificationError)
	return ok
}

func NewUserValidationError(message string) error {
	return &UserValidationError{Message: message}
}

func NewUserAlreadyExistsError(username string) error {
	return &UserAlreadyExistsError{Username: username}
}

func NewUserVerificationError(username string) error {
	return &UserVerificationError{Username: username}
}
