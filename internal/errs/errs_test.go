package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	base := New(NotFound, "statement %s not found", "s1")
	wrapped := fmt.Errorf("reconcile: %w", base)

	assert.Equal(t, NotFound, CodeOf(base))
	assert.Equal(t, NotFound, CodeOf(wrapped))
	assert.Equal(t, Internal, CodeOf(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(nil, NotFound))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Internal, cause, "failed to save group").WithDetails(map[string]any{"groupId": "g1"})

	assert.Equal(t, "INTERNAL: failed to save group: disk full", err.Error())
	assert.Equal(t, "failed to save group", MessageOf(err))
	assert.Equal(t, "g1", DetailsOf(err)["groupId"])
	assert.ErrorIs(t, err, cause)
}
