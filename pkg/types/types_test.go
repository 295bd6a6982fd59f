package types

// ============================================================================
// Types Test File
// Purpose: Verify the task error taxonomy and task kind validation
// ============================================================================

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskErrorWrapping tests errors.Is/As interop through wrapping.
func TestTaskErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTaskError(ErrKindBackend, "all backends failed", cause)

	assert.True(t, errors.Is(err, cause))

	wrapped := fmt.Errorf("submit: %w", err)
	var taskErr *TaskError
	require.True(t, errors.As(wrapped, &taskErr))
	assert.Equal(t, ErrKindBackend, taskErr.Kind)
	assert.Contains(t, err.Error(), "backend_error")
	assert.Contains(t, err.Error(), "connection refused")
}

// TestKindOf tests classification, defaulting to backend failure.
func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindTimeout, KindOf(NewTaskError(ErrKindTimeout, "deadline", nil)))
	assert.Equal(t, ErrKindQueueOverflow,
		KindOf(fmt.Errorf("outer: %w", NewTaskError(ErrKindQueueOverflow, "full", nil))))
	assert.Equal(t, ErrKindBackend, KindOf(errors.New("anything else")))
}

// TestValidTaskKind tests the accepted kind set.
func TestValidTaskKind(t *testing.T) {
	for _, kind := range []TaskKind{
		TaskGenerate, TaskReview, TaskRefactor, TaskExplain,
		TaskTest, TaskFix, TaskComplete, TaskTranslate,
	} {
		assert.True(t, ValidTaskKind(kind), string(kind))
	}
	assert.False(t, ValidTaskKind(TaskKind("compile")))
	assert.False(t, ValidTaskKind(TaskKind("")))
}
