package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{CodeValidation, http.StatusBadRequest, "validation failed", false, true},
		{CodeUnauthorized, http.StatusUnauthorized, "authentication required", false, false},
		{CodeForbidden, http.StatusForbidden, "access denied", false, false},
		{CodeNotFound, http.StatusNotFound, "resource not found", false, false},
		{CodeConflict, http.StatusConflict, "conflict detected", false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, "state transition disallowed", false, true},
		{CodeIdempotency, http.StatusConflict, "idempotency key reused", false, true},
		{CodeRateLimit, http.StatusTooManyRequests, "rate limit exceeded", false, false},
		{CodePaymentDecline, http.StatusBadRequest, "payment declined", false, true},
		{CodeInternal, http.StatusInternalServerError, "internal server error", true, false},
		{CodeDependency, http.StatusServiceUnavailable, "dependency unavailable", true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, Metadata{tt.status, tt.retryable, tt.publicMsg, tt.detailsOK}, MetadataFor(tt.code))
		})
	}
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing foo", base.Error())

	assert.Same(t, base, base.WithDetails(map[string]any{"field": "foo"}))
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Nil(t, Wrap(CodeConflict, nil, "ctx").Unwrap())

	assert.Equal(t, "only 2 left", Newf(CodeValidation, "only %d left", 2).Message())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.WithDetails("x"))
	assert.Nil(t, e.Unwrap())
	assert.Empty(t, e.Error())
}

func TestAsAndIsCode(t *testing.T) {
	inner := New(CodePaymentDecline, "card declined")
	outer := fmt.Errorf("charge: %w", inner)

	got := As(outer)
	require.NotNil(t, got)
	assert.Same(t, inner, got)
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	assert.True(t, IsCode(outer, CodePaymentDecline))
	assert.False(t, IsCode(outer, CodeValidation))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(CodeDependency, stdErrors.New("redis down"), "ping")))
	assert.True(t, IsRetryable(stdErrors.New("untyped")))
	assert.False(t, IsRetryable(New(CodeValidation, "bad")))
	assert.False(t, IsRetryable(nil))
}
