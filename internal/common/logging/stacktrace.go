package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
)

const (
	Stacktrace = "stacktrace"
	ErrorKind  = "errorKind"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err to logger together with the deepest stack trace recorded in its chain and, for errors of
// a known kind, that kind.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	if kind, ok := apperrors.KindOf(err); ok {
		logger = logger.WithField(ErrorKind, kind.String())
	}
	return logger
}

// ExtractStack returns the stack trace closest to where the error originated, or nil if the chain carries none.
func ExtractStack(err error) errors.StackTrace {
	var deepest errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			deepest = tracer.StackTrace()
		}
		err = errors.Unwrap(err)
	}
	return deepest
}
