package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ErrValidation, http.StatusBadRequest},
		{"conflict with cause", ErrConflict.WithCause(errors.New("taken")), http.StatusConflict},
		{"wrapped transport", fmt.Errorf("send: %w", ErrTransport), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.err))
		})
	}
}

func TestToErrorResponse_HidesCause(t *testing.T) {
	err := ErrTransport.WithCause(errors.New("dial tcp 10.0.0.7:9092: connection refused"))

	resp := ToErrorResponse(err)
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, "TRANSPORT_ERROR", resp.ErrorCode)
	assert.Nil(t, resp.Details)
}

func TestToErrorResponse_ForeignError(t *testing.T) {
	resp := ToErrorResponse(errors.New("secret internals"))
	assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	err := ErrValidation.WithDetail("errors", []string{"x"})

	assert.Len(t, err.Details, 1)
	assert.Empty(t, ErrValidation.Details)
	assert.True(t, IsValidation(err))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("reserve: %w", ErrConflict.WithCause(errors.New("exists")))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.True(t, IsConflict(err))
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("kaboom")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(err))
	assert.Contains(t, err.Error(), "kaboom")
}
