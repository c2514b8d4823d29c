package model

import (
	"errors"
	"fmt"
)

// Error represents a failure detected while mutating or resolving the graph.
//
// Error includes structured fields for diagnostics:
//   - Ownership violations: a node attached to a second document
//   - Unknown references: a node id that cannot be resolved
//   - Usage errors: ambiguous name lookups, unknown callbacks, restricted handles
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the affected node, if any.
	NodeID string

	// DocumentID identifies the affected document, if any.
	DocumentID string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// ErrCodeOwnership indicates a node is already attached to another document.
	ErrCodeOwnership ErrorCode = "OWNERSHIP_VIOLATION"

	// ErrCodeUnknownReference indicates a node id neither known nor defined.
	ErrCodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"

	// ErrCodeUnknownType indicates a type name missing from the catalog.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeUnknownCallback indicates a callback that was never added or
	// has already been removed.
	ErrCodeUnknownCallback ErrorCode = "UNKNOWN_CALLBACK"

	// ErrCodeAmbiguousName indicates more than one node carries a name.
	ErrCodeAmbiguousName ErrorCode = "AMBIGUOUS_NAME"

	// ErrCodeRestricted indicates an operation attempted through a
	// restricted (unlocked) document handle.
	ErrCodeRestricted ErrorCode = "RESTRICTED_HANDLE"

	// ErrCodeInvalidValue indicates a value that cannot be stored or serialized.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeInvalidPatch indicates a malformed patch or patch event.
	ErrCodeInvalidPatch ErrorCode = "INVALID_PATCH"

	// ErrCodeDuplicateID indicates two distinct nodes sharing an id.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeDestroyed indicates use of a destroyed document.
	ErrCodeDestroyed ErrorCode = "DESTROYED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.NodeID != "" && e.DocumentID != "" {
		return fmt.Sprintf("%s: %s (node=%s, document=%s)", e.Code, e.Message, e.NodeID, e.DocumentID)
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsOwnershipError returns true if the error is an ownership violation.
func IsOwnershipError(err error) bool {
	return HasCode(err, ErrCodeOwnership)
}

// IsUnknownReference returns true if the error names an unresolvable node.
func IsUnknownReference(err error) bool {
	return HasCode(err, ErrCodeUnknownReference)
}

// IsAmbiguousName returns true if a name lookup matched more than one node.
func IsAmbiguousName(err error) bool {
	return HasCode(err, ErrCodeAmbiguousName)
}

// IsUnknownCallback returns true if a callback removal named an unknown callback.
func IsUnknownCallback(err error) bool {
	return HasCode(err, ErrCodeUnknownCallback)
}

// IsRestricted returns true if the error came from a restricted handle.
func IsRestricted(err error) bool {
	return HasCode(err, ErrCodeRestricted)
}

// NewOwnershipError creates an Error for a node owned by another document.
func NewOwnershipError(nodeID, documentID, ownerID string) *Error {
	return &Error{
		Code:       ErrCodeOwnership,
		Message:    "nodes must be owned by only a single document",
		NodeID:     nodeID,
		DocumentID: documentID,
		Details: map[string]string{
			"owner": ownerID,
		},
	}
}

// NewUnknownReferenceError creates an Error for an unresolvable node id.
func NewUnknownReferenceError(nodeID, context string) *Error {
	return &Error{
		Code:    ErrCodeUnknownReference,
		Message: fmt.Sprintf("cannot resolve reference in %s", context),
		NodeID:  nodeID,
	}
}

// NewInvalidValueError creates an Error for a rejected value.
func NewInvalidValueError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf(format, args...),
	}
}
