package domain

import "errors"

// ErrUserAlreadyExists is returned when trying to create a user that already exists.
var ErrUserAlreadyExists = errors.New("user with this external id already exists")

// ErrUserNotFound is returned by directory operations that require an
// existing record (e.g. an impersonation target).
var ErrUserNotFound = errors.New("user not found")

// ErrNotAuthorized is returned when a non-elevated identity attempts a
// privileged operation.
var ErrNotAuthorized = errors.New("not authorized")
