package transfer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDaemonError_Error(t *testing.T) {
	err := &DaemonError{Method: "aria2.addUri", Code: 1, Message: "No URI to download."}

	assert.Equal(t, "daemon error during aria2.addUri (code 1): No URI to download.", err.Error())
}

func TestDaemonError_IsJobNotFound(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "aria2 gid not found", message: "GID 2089b05ecca3d829 is not found", want: true},
		{name: "other error", message: "Invalid URI", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("remove: %w", &DaemonError{Method: "aria2.remove", Code: 1, Message: tt.message})
			assert.Equal(t, tt.want, errors.Is(err, ErrJobNotFound))
		})
	}
}

func TestNetworkError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *NetworkError
		wantFormat string
	}{
		{
			name:       "with HTTP status code",
			err:        &NetworkError{Operation: "aria2.tellStatus", StatusCode: 503, Message: "service unavailable"},
			wantFormat: "network error during aria2.tellStatus (HTTP 503): service unavailable",
		},
		{
			name:       "without HTTP status code",
			err:        &NetworkError{Operation: "probe", Message: "connection refused"},
			wantFormat: "network error during probe: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFormat, tt.err.Error())
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("dial tcp 127.0.0.1:6800: connect: connection refused")

	unreachable := &DaemonUnreachableError{Host: "localhost", Ports: []int{6800, 16800}, Err: base}
	assert.ErrorIs(t, unreachable, base)
	assert.Equal(t, "download daemon unreachable on localhost ports [6800 16800]", unreachable.Error())

	network := &NetworkError{Operation: "aria2.addUri", Err: base}
	assert.ErrorIs(t, network, base)

	auth := &AuthenticationError{Operation: "aria2.getGlobalStat", Err: base}
	assert.ErrorIs(t, auth, base)

	var target *DaemonUnreachableError
	assert.True(t, errors.As(fmt.Errorf("connect: %w", unreachable), &target))
	assert.Equal(t, []int{6800, 16800}, target.Ports)
}
