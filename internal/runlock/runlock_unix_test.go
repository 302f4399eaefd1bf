//go:build unix

package runlock

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func writeOwner(t *testing.T, path string, o Owner) {
	t.Helper()
	data, err := json.Marshal(o)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLock_ReclaimsLockOfExitedProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	writeOwner(t, path, Owner{PID: exitedPID(t), RunID: "crashed", BatchID: "2025-01-01T00:00:00Z"})

	l := New(path)
	require.NoError(t, l.TryAcquire("run-2", "2025-09-18T08:00:00Z"))

	owner, err := ReadOwner(path)
	require.NoError(t, err)
	assert.Equal(t, "run-2", owner.RunID)
	assert.Equal(t, os.Getpid(), owner.PID)
	require.NoError(t, l.Release())
}

func TestLock_LiveOwnerIsNotReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	writeOwner(t, path, Owner{PID: os.Getpid(), RunID: "live", BatchID: "b1"})

	err := New(path).TryAcquire("run-2", "b2")
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), "live")
}

func TestLock_UnreadableOwnerIsNotReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	require.ErrorIs(t, New(path).TryAcquire("run-2", "b2"), ErrAlreadyRunning)
	assert.FileExists(t, path)
}
