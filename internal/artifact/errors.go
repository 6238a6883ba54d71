package artifact

import "errors"

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrVersionNotFound is returned when the requested sequence is
	// out of range for an existing artifact.
	ErrVersionNotFound = errors.New("artifact version not found")

	// ErrInvalidKind is returned when an artifact is created with an
	// unknown kind.
	ErrInvalidKind = errors.New("invalid artifact kind")

	// ErrInvalidRange is returned by DiffRange when from > to.
	ErrInvalidRange = errors.New("invalid version range")
)
