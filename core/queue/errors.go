package queue

// Error types for queue operations
type JobValidationError struct {
	Message string
}

type JobActiveError struct {
	ID string
}

func (e *JobValidationError) Error() string {
	return "Job validation failed: " + e.Message
}

func (e *JobActiveError) Error() string {
	return "Job is still being processed: " + e.ID
}

// helper functions for error handling

func IsJobValidationError(err error) bool {
	_, ok := err.(*JobValidationError)
	return ok
}

func IsJobActiveError(err error) bool {
	_, ok := err.(*JobActiveError)
	return ok
}

func NewJobValidationError(message string) error {
	return &JobValidationError{Message: message}
}

func NewJobActiveError(id string) error {
	return &JobActiveError{ID: id}
}
