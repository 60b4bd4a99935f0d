package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestIsFatal_ClassifiesStatusCodes covers the three-way ignore/back-off/fatal classification:
// DeadlineExceeded and Unavailable are retried with back-off, Ok/AlreadyExists are never
// treated as fatal, and every other code terminates the agent for its supervisor to restart.
func TestIsFatal_ClassifiesStatusCodes(t *testing.T) {
	recoverable := []codes.Code{codes.OK, codes.AlreadyExists, codes.DeadlineExceeded, codes.Unavailable}
	for _, code := range recoverable {
		t.Run(code.String(), func(t *testing.T) {
			assert.False(t, isFatal(status.Error(code, "transient")))
		})
	}

	fatal := []codes.Code{
		codes.Canceled,
		codes.Unknown,
		codes.InvalidArgument,
		codes.NotFound,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.Internal,
		codes.Unimplemented,
	}
	for _, code := range fatal {
		t.Run(code.String(), func(t *testing.T) {
			assert.True(t, isFatal(status.Error(code, "broken")))
		})
	}
}

func TestIsFatal_NonStatusErrorIsNotFatal(t *testing.T) {
	// A plain transport error never went through the gRPC status machinery; treat it like a
	// dropped connection and reconnect.
	assert.False(t, isFatal(assertErrSession("connection reset")))
}

func TestBackoffPolicy_DoublesAndCaps(t *testing.T) {
	b := newBackoffPolicy()

	assert.Equal(t, 2*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	assert.Equal(t, 8*time.Second, b.next())

	var last time.Duration
	for i := 0; i < 20; i++ {
		last = b.next()
	}
	assert.Equal(t, 30*time.Second, last)
}

func TestBackoffPolicy_ResetRestartsTheLadder(t *testing.T) {
	b := newBackoffPolicy()
	for i := 0; i < 5; i++ {
		b.next()
	}
	b.reset()
	assert.Equal(t, 2*time.Second, b.next())
}

type assertErrSession string

func (e assertErrSession) Error() string { return string(e) }
