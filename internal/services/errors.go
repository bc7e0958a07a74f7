// Package services holds the message limiting and conversation logic: the
// per-user limiter, the adaptive account-wide limiter and flood recorder,
// the inbound Guard that chains them, the conversation service around the
// sales stage machine, and the administrative operations.
//
// Rejections are values (Decision), not errors. Errors returned from this
// package are storage faults or invalid input and are checked with the
// sentinels below.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage wraps every Counter Store fault. The operation in progress
	// did not complete.
	ErrStorage = errors.New("storage error")

	// ErrInvalidUserID is returned for a blank user identifier.
	ErrInvalidUserID = errors.New("user id is empty")

	// ErrInvalidWait is returned for a negative flood wait.
	ErrInvalidWait = errors.New("wait seconds must be >= 0")

	// ErrContextConflict is returned when a conversation write kept losing
	// to concurrent writers.
	ErrContextConflict = errors.New("conversation context changed concurrently")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReservedExtension is returned when an extension key names one of
	// the reserved context fields.
	ErrReservedExtension = errors.New("extension key is reserved")

	// ErrNotConfigured is returned when an operation needs a limiter the
	// Guard was built without.
	ErrNotConfigured = errors.New("limiter not configured")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
