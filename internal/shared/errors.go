package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation indicates a request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the acting user lacks a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates no authenticated identity is present.
	ErrUnauthorized = errors.New("unauthorized")
)

// UserSafeMessage maps internal errors to messages safe to show callers.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrUnauthorized):
		return "Please sign in to continue."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	default:
		return "Something went wrong. Please try again."
	}
}
