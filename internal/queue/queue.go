// Package queue persists pending hardsub jobs as a JSON array on local disk.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/storage"
)

// ErrEmpty is returned by PeekFirst and PopFirst when there are no jobs.
var ErrEmpty = errors.New("queue is empty")

const filePerm = 0640

// FileQueue is a FIFO of jobs backed by a single JSON file. The file is the
// only state: every operation re-reads it, and every mutation rewrites it
// through a temporary file and a rename.
type FileQueue struct {
	path string
	mu   sync.Mutex
}

// NewFileQueue returns a queue stored at path. The file is created on first Push.
func NewFileQueue(path string) *FileQueue {
	return &FileQueue{path: path}
}

// Path returns the backing file path.
func (q *FileQueue) Path() string {
	return q.path
}

// Push appends job to the end of the queue.
func (q *FileQueue) Push(job models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load()
	if err != nil {
		return err
	}
	return q.store(append(jobs, job))
}

// IsEmpty reports whether the queue has no jobs. A missing file is empty.
func (q *FileQueue) IsEmpty() (bool, error) {
	n, err := q.Len()
	return n == 0, err
}

// Len returns the number of queued jobs.
func (q *FileQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load()
	return len(jobs), err
}

// PeekFirst returns the head of the queue without removing it.
func (q *FileQueue) PeekFirst() (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load()
	if err != nil {
		return models.Job{}, err
	}
	if len(jobs) == 0 {
		return models.Job{}, ErrEmpty
	}
	return jobs[0], nil
}

// PopFirst removes the head of the queue.
func (q *FileQueue) PopFirst() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return ErrEmpty
	}
	return q.store(jobs[1:])
}

// List returns every queued job in order.
func (q *FileQueue) List() ([]models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load()
	if jobs == nil {
		jobs = []models.Job{}
	}
	return jobs, err
}

// Wipe removes the backing file.
func (q *FileQueue) Wipe() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing queue file: %w", err)
	}
	return nil
}

func (q *FileQueue) load() ([]models.Job, error) {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var jobs []models.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decoding queue file %s: %w", q.path, err)
	}
	return jobs, nil
}

func (q *FileQueue) store(jobs []models.Job) error {
	if jobs == nil {
		jobs = []models.Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	if err := storage.WriteFileAtomic(q.path, data, filePerm); err != nil {
		return fmt.Errorf("writing queue file: %w", err)
	}
	return nil
}
