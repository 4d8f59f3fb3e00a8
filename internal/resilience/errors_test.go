package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid json"), false},
		{"explicit", NewTransientError(errors.New("429"), 429), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("503"), 503), "extract"), true},
		{"fmt wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 0)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"net timeout", timeoutErr{}, true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"io timeout text", errors.New("dial tcp: I/O timeout"), true},
		{"salesforce row lock", errors.New("UNABLE_TO_LOCK_ROW: unable to obtain exclusive access to this record"), true},
		{"anthropic overloaded", errors.New(`{"type":"error","error":{"type":"overloaded_error"}}`), true},
		{"salesforce invalid field", errors.New("INVALID_FIELD: No such column"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("upstream down")
	te := NewTransientError(inner, 502)
	assert.Equal(t, "upstream down", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 502, te.StatusCode)
}
