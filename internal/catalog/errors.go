package catalog

import (
	"errors"
	"fmt"

	"magpie/internal/services"
)

var (
	// ErrNotFound reports a missing workflow, page, backend, user or comment.
	ErrNotFound = fmt.Errorf("catalog: %w", services.ErrNotFound)
	// ErrInvalid reports a rejected write.
	ErrInvalid = fmt.Errorf("catalog: %w", services.ErrValidation)
	// ErrInvalidMapping reports page input mappings that do not fit the bound workflow.
	ErrInvalidMapping = fmt.Errorf("catalog: invalid page mapping: %w", services.ErrValidation)
	// ErrConflict reports a duplicate identifier, such as an already registered phone.
	ErrConflict = errors.New("catalog: already exists")
	// ErrInvalidCredentials is returned by Authenticate for any phone/password mismatch.
	ErrInvalidCredentials = errors.New("catalog: invalid phone or password")
	// ErrForbidden reports an account acting beyond its role.
	ErrForbidden = errors.New("catalog: permission denied")
	// ErrLastSuperAdmin prevents removing the only super administrator.
	ErrLastSuperAdmin = fmt.Errorf("catalog: cannot demote the last super admin: %w", services.ErrValidation)
)
