// Package runlock keeps two runs from writing the ledgers at the same time.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("a run is already in progress")

// Owner is written into the lock file.
type Owner struct {
	PID      int    `json:"pid"`
	RunID    string `json:"run_id"`
	BatchID  string `json:"batch_id"`
	Acquired string `json:"acquired_at"`
}

// Lock is a run-level exclusive lock backed by a lock file. A Lock value also
// guards against concurrent acquisition within the process.
type Lock struct {
	path string
	mu   sync.Mutex
	held bool
}

func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the lock or fails fast with ErrAlreadyRunning; it never waits.
// A lock file left behind by a process that no longer exists is reclaimed.
func (l *Lock) TryAcquire(runID, batchID string) error {
	if !l.mu.TryLock() {
		return ErrAlreadyRunning
	}
	defer l.mu.Unlock()

	if l.held {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		owner, rerr := ReadOwner(l.path)
		if rerr != nil || owner.PID <= 0 || processAlive(owner.PID) {
			return held(owner, rerr)
		}

		// the owner died without releasing; take the lock over
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale lock file: %w", err)
		}
		f, err = os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyRunning
		}
	}
	if err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}

	owner := Owner{
		PID:      os.Getpid(),
		RunID:    runID,
		BatchID:  batchID,
		Acquired: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(f).Encode(owner); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("close lock file: %w", err)
	}

	l.held = true
	return nil
}

// Release removes the lock file. Releasing a lock that is not held is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func held(owner Owner, err error) error {
	if err != nil || owner.RunID == "" {
		return ErrAlreadyRunning
	}
	return fmt.Errorf("%w (run %s, batch %s, pid %d)", ErrAlreadyRunning, owner.RunID, owner.BatchID, owner.PID)
}

// ReadOwner reports who holds the lock at path.
func ReadOwner(path string) (Owner, error) {
	var o Owner
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse lock file: %w", err)
	}
	return o, nil
}
