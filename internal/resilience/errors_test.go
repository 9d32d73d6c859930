package resilience

import (
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

// dialTimeoutErr mimics the net.Error a dialer returns on deadline expiry.
type dialTimeoutErr struct{}

func (dialTimeoutErr) Error() string   { return "dial tcp 10.0.0.1:443: i/o timeout" }
func (dialTimeoutErr) Timeout() bool   { return true }
func (dialTimeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	resetByPeer := &net.OpError{
		Op:  "read",
		Net: "tcp",
		Err: os.NewSyscallError("read", syscall.ECONNRESET),
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", eris.New("boom"), false},
		{"transient wrapper", NewTransientError(eris.New("503"), 503), true},
		{"wrapped transient", eris.Wrap(NewTransientError(eris.New("503"), 503), "call failed"), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"broken pipe", syscall.EPIPE, true},
		{"reset by peer through op error", resetByPeer, true},
		{"dial timeout", dialTimeoutErr{}, true},
		{"wrapped dial timeout", eris.Wrap(dialTimeoutErr{}, "agents: extract request"), true},
		{"dns lookup failure", &net.DNSError{Err: "no such host", Name: "api.internal", IsNotFound: true}, true},
		{"validation error", eris.New("field coverage out of range"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := eris.New("inner")
	te := NewTransientError(inner, 500)

	assert.Equal(t, "transient (status 500): inner", te.Error())
	assert.Equal(t, inner, te.Unwrap())
	assert.Equal(t, 500, te.StatusCode)

	plain := NewTransientError(inner, 0)
	assert.Equal(t, "inner", plain.Error())
}
