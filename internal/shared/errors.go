package shared

import "errors"

var (
	// ErrNotFound indicates a role, user, or permission id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a role name collision.
	ErrDuplicateName = errors.New("duplicate role name")
	// ErrImmutableRole indicates a mutation was attempted on a system role.
	ErrImmutableRole = errors.New("system role is immutable")
	// ErrInvalidArgument indicates an empty name or malformed id.
	ErrInvalidArgument = errors.New("invalid argument")
)
