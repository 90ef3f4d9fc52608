package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(KindIntegrity, "a.jar", "checksum mismatch")
	wrapped := Wrap(KindNetwork, "download", fmt.Errorf("task: %w", inner))

	assert.Equal(t, KindIntegrity, KindOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestWrapContextCancellation(t *testing.T) {
	err := Wrap(KindNetwork, "GET x", context.Canceled)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.True(t, IsRetryable(Wrap(KindNetwork, "GET", errors.New("reset"))))
}

func TestErrorMessage(t *testing.T) {
	err := Status(KindRateLimit, "search", 429, "slow down")
	assert.Equal(t, "RateLimitError: search: slow down (code 429)", err.Error())
}
