// Package bolerr defines the error taxonomy shared by the lifecycle engine.
// Callers branch on the concrete type: conflicts are retried with a fresh
// read, storage failures are retried with backoff, everything else is
// surfaced as-is.
package bolerr

import (
	"errors"
	"fmt"
)

// Machine-readable error codes, mirrored into API responses by the
// (external) transport layer.
const (
	CodeConflict          = "CONFLICT"
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeStorageFailure    = "STORAGE_FAILURE"
	CodeNotFound          = "ENTITY_NOT_FOUND"
)

// ConflictError signals an optimistic-concurrency failure: the caller
// supplied a stale draft version and must re-read before retrying.
type ConflictError struct {
	DraftID         string
	SuppliedVersion int64
	CurrentVersion  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("draft %s: stale version %d, current is %d",
		e.DraftID, e.SuppliedVersion, e.CurrentVersion)
}

// Code returns the machine-readable code for the error.
func (e *ConflictError) Code() string { return CodeConflict }

// InvalidStateError signals an operation that is not valid for the entity's
// current status, e.g. approving a draft that is no longer pending.
type InvalidStateError struct {
	Op      string
	ID      string
	Status  string
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (id %s, status %s)", e.Op, e.Message, e.ID, e.Status)
	}
	return fmt.Sprintf("%s: not allowed in status %s (id %s)", e.Op, e.Status, e.ID)
}

func (e *InvalidStateError) Code() string { return CodeInvalidState }

// InvalidTransitionError identifies the attempted status edge and the edge
// that would have been allowed.
type InvalidTransitionError struct {
	From    string
	To      string
	Allowed string
}

func (e *InvalidTransitionError) Error() string {
	if e.Allowed == "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s -> %s: allowed edge is %s -> %s",
		e.From, e.To, e.From, e.Allowed)
}

func (e *InvalidTransitionError) Code() string { return CodeInvalidTransition }

// StorageFailure wraps an unreachable or timed-out store call. Retriable
// with the same idempotency keys.
type StorageFailure struct {
	Store string // "draft", "document", "ledger"
	Op    string
	Err   error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("%s store: %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

func (e *StorageFailure) Code() string { return CodeStorageFailure }

// NotFoundError signals an unknown id or content hash.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

// IsRetriable reports whether the error may succeed on a verbatim retry.
// Only storage failures qualify; domain errors cannot succeed without the
// caller changing its input.
func IsRetriable(err error) bool {
	var sf *StorageFailure
	return errors.As(err, &sf)
}

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
