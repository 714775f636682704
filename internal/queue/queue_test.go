package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *FileQueue {
	t.Helper()
	return NewFileQueue(filepath.Join(t.TempDir(), "queue.json"))
}

func job(name string) models.Job {
	return models.Job{InputFile: "Airing/Show/" + name, OutputFolder: "Airing [Hardsub]/Show"}
}

func TestFileQueue_MissingFileIsEmpty(t *testing.T) {
	q := newTestQueue(t)

	empty, err := q.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	jobs, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NotNil(t, jobs)

	_, err = q.PeekFirst()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, q.PopFirst(), ErrEmpty)
}

func TestFileQueue_FIFO(t *testing.T) {
	q := newTestQueue(t)
	names := []string{"ep01.mkv", "ep02.mkv", "ep03.mkv"}
	for _, n := range names {
		require.NoError(t, q.Push(job(n)))
	}

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, name := range names {
		head, err := q.PeekFirst()
		require.NoError(t, err)
		assert.Equal(t, job(name), head)

		// Peek does not consume.
		again, err := q.PeekFirst()
		require.NoError(t, err)
		assert.Equal(t, head, again)

		require.NoError(t, q.PopFirst())
	}

	empty, err := q.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestFileQueue_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	offset, size, idx := 1.5, 40.0, 0
	original := models.Job{
		InputFile:      "Premiered/Show/ep01.mkv",
		OutputFolder:   "Premiered [Hardsub]/Show",
		ShowName:       "Show",
		SubtitleFile:   "Subs/ep01.ass",
		SubtitleOffset: &offset,
		SubIndex:       &idx,
		FontStyle:      "Roboto",
		FontSize:       &size,
	}
	require.NoError(t, NewFileQueue(path).Push(original))

	reloaded := NewFileQueue(path)
	head, err := reloaded.PeekFirst()
	require.NoError(t, err)
	assert.Equal(t, original, head)
}

func TestFileQueue_Wipe(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(job("ep01.mkv")))

	require.NoError(t, q.Wipe())
	_, err := os.Stat(q.Path())
	assert.True(t, os.IsNotExist(err))

	empty, err := q.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, q.Wipe(), "wiping a missing queue is not an error")
}

func TestFileQueue_PopLastLeavesEmptyArray(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(job("ep01.mkv")))
	require.NoError(t, q.PopFirst())

	data, err := os.ReadFile(q.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFileQueue_CorruptFile(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, os.WriteFile(q.Path(), []byte("{not json"), 0640))

	_, err := q.IsEmpty()
	assert.Error(t, err)
	assert.Error(t, q.Push(job("ep01.mkv")))

	data, err := os.ReadFile(q.Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "a corrupt queue must not be overwritten")
}

func TestFileQueue_ConcurrentPush(t *testing.T) {
	q := newTestQueue(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Push(job("ep.mkv")))
		}()
	}
	wg.Wait()

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
