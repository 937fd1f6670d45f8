package common

import "errors"

var (
	// request errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidSession   = errors.New("invalid session data")
	ErrValidation       = errors.New("invalid request")
	ErrUnsupportedType  = errors.New("invalid file type, only JPEG, PNG, and WebP are allowed")

	// account errors
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid password")

	// store errors
	ErrNotFound = errors.New("not found")
	ErrStore    = errors.New("database operation failed")

	ErrCodec = errors.New("image could not be processed")

	// inference errors
	ErrSubmission      = errors.New("inference request failed")
	ErrPollTimeout     = errors.New("inference polling timed out")
	ErrResponseFormat  = errors.New("invalid inference response format")
	ErrInferenceFailed = errors.New("inference job failed")
)
