package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/services/scheduler"
)

func TestSweep_RemovesOnlyStaleDirectories(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "job_old_0")
	fresh := filepath.Join(root, "job_fresh_0")
	require.NoError(t, os.MkdirAll(filepath.Join(old, "segments"), 0755))
	require.NoError(t, os.MkdirAll(fresh, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0644))

	past := time.Now().Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	j := NewJanitor(common.WorkspaceConfig{Root: root, MaxAge: "6h"}, arbor.NewLogger())
	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "stray.txt"))
}

func TestSweep_MissingRoot(t *testing.T) {
	j := NewJanitor(common.WorkspaceConfig{Root: filepath.Join(t.TempDir(), "nope")}, arbor.NewLogger())
	removed, err := j.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRegister(t *testing.T) {
	sched := scheduler.NewService(arbor.NewLogger())
	defer sched.Stop()

	j := NewJanitor(common.WorkspaceConfig{Root: t.TempDir()}, arbor.NewLogger())
	require.NoError(t, j.Register(sched))

	st, err := sched.GetTaskStatus(TaskName)
	require.NoError(t, err)
	assert.Equal(t, "@every 15m", st.Schedule)
}
