package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	out, err := NewExecRunner().Run(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestExecRunner_WithDir(t *testing.T) {
	dir := t.TempDir()
	out, err := NewExecRunner().WithDir(dir).Run(context.Background(), "sh", "-c", "pwd")
	require.NoError(t, err)
	assert.Contains(t, string(out), dir)
}

func TestExecRunner_ExitError(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), "sh", "-c", "echo first >&2; echo 'bad input' >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Contains(t, exitErr.Stderr, "first")
	assert.Contains(t, err.Error(), "bad input")
	assert.NotErrorIs(t, err, ErrKilled)
	assert.False(t, models.IsKilled(err))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), "definitely-not-a-binary-98765")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, -1, exitErr.ExitCode())
}

func TestExecRunner_KilledByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewExecRunner().WithWaitDelay(time.Second).Run(ctx, "sleep", "10")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKilled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, models.IsKilled(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunner_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecRunner().Run(ctx, "sh", "-c", "exit 0")
	assert.ErrorIs(t, err, ErrKilled)
}

func TestKilledError_CodedAsProcessKilled(t *testing.T) {
	err := models.NewError(models.CodeUploadFailed, &KilledError{Name: "rclone", Err: context.Canceled})
	assert.Equal(t, models.CodeProcessKilled, err.Code)
	assert.True(t, errors.Is(err, ErrKilled))
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "cdefg", tb.String())
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "c", lastLine("a\nb\nc\n"))
	assert.Equal(t, "single", lastLine("single"))
	assert.Empty(t, lastLine(""))
}
