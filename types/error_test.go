package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrHandleOccupied, "handle prompt already has a connection")
	assert.Equal(t, "[HANDLE_OCCUPIED] handle prompt already has a connection", err.Error())

	cause := errors.New("boom")
	wrapped := Errorf(ErrExecutorFailed, "recipe %s", "summarize").WithCause(cause)
	assert.Contains(t, wrapped.Error(), "boom")
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeOf(t *testing.T) {
	err := NewError(ErrWouldCreateCycle, "would create a cycle")
	assert.Equal(t, ErrWouldCreateCycle, CodeOf(err))
	assert.True(t, IsCode(err, ErrWouldCreateCycle))

	// Codes survive %w wrapping.
	outer := fmt.Errorf("adding edge: %w", err)
	assert.Equal(t, ErrWouldCreateCycle, CodeOf(outer))

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
