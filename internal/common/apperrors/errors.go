// Package apperrors contains the error taxonomy shared by the ingestion core and the layers around it.
//
// Failures of the ingestion pipeline are reported as *Error values carrying one of a closed set of kinds, so callers
// can branch on the kind rather than on message text. Failures at the service surface use the generic resource
// errors ErrNotFound, ErrAlreadyExists and ErrInvalidArgument. HttpStatusFromError maps both to HTTP status codes.
//
// If multiple errors occur in some function, that function should return an error of type multierror.Error from
// package github.com/hashicorp/go-multierror that encapsulates those individual errors.
package apperrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind int

const (
	// KindParseSkip marks a line that failed the log grammar. It never leaves the parser boundary.
	KindParseSkip Kind = iota
	// KindStream marks a failure reading the uploaded file.
	KindStream
	// KindStore marks a failed write or read against the event, summary or job stores.
	KindStore
	// KindJobNotFound marks a lifecycle transition against a job that does not exist.
	KindJobNotFound
)

func (k Kind) String() string {
	switch k {
	case KindParseSkip:
		return "parse skip"
	case KindStream:
		return "stream error"
	case KindStore:
		return "store error"
	case KindJobNotFound:
		return "job not found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is an error of a known Kind with a human-readable detail and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (err *Error) Error() string {
	s := err.Kind.String()
	if err.Detail != "" {
		s = s + ": " + err.Detail
	}
	if err.cause != nil {
		s = s + ": " + err.cause.Error()
	}
	return s
}

func (err *Error) Cause() error {
	return err.cause
}

func (err *Error) Unwrap() error {
	return err.cause
}

// New returns an error of the given kind with a stack trace attached.
func New(kind Kind, detail string) error {
	return errors.WithStack(&Error{Kind: kind, Detail: detail})
}

// Wrap returns an error of the given kind wrapping cause. Returns nil if cause is nil.
func Wrap(kind Kind, cause error, detail string) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Detail: detail, cause: cause})
}

// KindOf returns the kind of the first *Error in the chain of err.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether the chain of err contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "log" or "job"
	Value   string // Resource id
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "limit"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
}

// HttpStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HttpStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrAlreadyExists
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	if kind, ok := KindOf(err); ok {
		switch kind {
		case KindJobNotFound:
			return http.StatusNotFound
		case KindStream, KindStore:
			return http.StatusBadGateway
		}
	}

	return http.StatusInternalServerError
}
