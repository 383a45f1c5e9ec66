package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(KindStore, nil, "flush"))
}

func TestWrap_KeepsKindAndCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindStore, cause, "flushing batch")

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindStore, kind)
	assert.True(t, IsKind(err, KindStore))
	assert.False(t, IsKind(err, KindStream))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "store error: flushing batch: connection refused", err.Error())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := errors.WithMessage(New(KindJobNotFound, "abc"), "transition")
	assert.True(t, IsKind(err, KindJobNotFound))
	assert.Equal(t, "transition: job not found: abc", err.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("nope"))
	assert.False(t, ok)
}

func TestHttpStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected int
	}{
		"nil":              {err: nil, expected: http.StatusOK},
		"not found":        {err: &ErrNotFound{Type: "log", Value: "x"}, expected: http.StatusNotFound},
		"wrapped notfound": {err: errors.WithMessage(&ErrNotFound{Value: "x"}, "get"), expected: http.StatusNotFound},
		"already exists":   {err: &ErrAlreadyExists{Value: "x"}, expected: http.StatusConflict},
		"invalid":          {err: &ErrInvalidArgument{Name: "limit", Value: 0}, expected: http.StatusBadRequest},
		"job not found":    {err: New(KindJobNotFound, "j"), expected: http.StatusNotFound},
		"store":            {err: Wrap(KindStore, fmt.Errorf("down"), ""), expected: http.StatusBadGateway},
		"unknown":          {err: fmt.Errorf("boom"), expected: http.StatusInternalServerError},
		"multierror":       {err: multierror.Append(fmt.Errorf("a"), &ErrNotFound{Value: "x"}), expected: http.StatusNotFound},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, HttpStatusFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `resource "x" of type "log" does not exist`, (&ErrNotFound{Type: "log", Value: "x"}).Error())
	assert.Equal(t, `resource "x" does not exist; gone`, (&ErrNotFound{Value: "x", Message: "gone"}).Error())
	assert.Equal(t, `value "0" is invalid for field "limit"; must be positive`,
		(&ErrInvalidArgument{Name: "limit", Value: 0, Message: "must be positive"}).Error())
}
