package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrMissingRepo  = errors.New("repository is required")
	ErrMissingPath  = errors.New("path is required")
	ErrInvalidScore = errors.New("score must not be negative")
)
