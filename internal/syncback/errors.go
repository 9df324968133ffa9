package syncback

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a request that cannot run because required
// context is missing or malformed, such as an unresolved account.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// NotFoundError reports that the canonical message a request refers to
// does not exist.
type NotFoundError struct {
	MessageID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.MessageID)
}

// DuplicateCleanupError wraps a failure to delete provider-created sent
// copies. It is recoverable: the reconciler logs it and carries on.
type DuplicateCleanupError struct {
	HeaderMessageID string
	Err             error
}

func (e *DuplicateCleanupError) Error() string {
	return fmt.Sprintf("deleting sent copies of %s: %v", e.HeaderMessageID, e.Err)
}

func (e *DuplicateCleanupError) Unwrap() error { return e.Err }

// Insertion stages.
const (
	StageBuild = "build"
	StageStore = "store"
)

// InsertionError wraps a failure to build or store the canonical sent
// copy.
type InsertionError struct {
	MessageID string
	Stage     string
	Err       error
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("inserting sent copy of message %s (%s): %v", e.MessageID, e.Stage, e.Err)
}

func (e *InsertionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err (or any error in its chain) is
// a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsNotFound reports whether err (or any error in its chain) is a
// NotFoundError.
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// IsPermanent reports whether retrying the request cannot help.
func IsPermanent(err error) bool {
	return IsConfigurationError(err) || IsNotFound(err)
}
