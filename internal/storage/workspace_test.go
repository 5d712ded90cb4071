package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace(t *testing.T) {
	base := t.TempDir()

	ws, err := NewWorkspace(base, "job-123")
	require.NoError(t, err)

	assert.DirExists(t, ws.Root())
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Root()), "job_job-123_"))
	assert.DirExists(t, filepath.Join(ws.Root(), sourcesDir))
	assert.DirExists(t, filepath.Join(ws.Root(), clipsDir))
}

func TestNewWorkspace_RunsNeverShareDirectory(t *testing.T) {
	base := t.TempDir()

	a, err := NewWorkspace(base, "J1")
	require.NoError(t, err)
	b, err := NewWorkspace(base, "J1")
	require.NoError(t, err)

	assert.NotEqual(t, a.Root(), b.Root())
}

func TestNewWorkspace_SanitizesJobID(t *testing.T) {
	base := t.TempDir()

	ws, err := NewWorkspace(base, "../../escape")
	require.NoError(t, err)

	assert.Equal(t, base, filepath.Dir(ws.Root()))
}

func TestWorkspace_Paths(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "J1")
	require.NoError(t, err)

	dir, err := ws.SourceDir("abc_123")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.True(t, ws.Owns(dir))

	clip := ws.ClipPath(2, "abc_123")
	assert.Equal(t, "segment_002_abc_123.mp4", filepath.Base(clip))
	assert.True(t, ws.Owns(clip))

	assert.Equal(t, filepath.Join(ws.Root(), ArtifactName), ws.OutputPath())
}

func TestWorkspace_Owns(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "J1")
	require.NoError(t, err)

	assert.False(t, ws.Owns(ws.Root()))
	assert.False(t, ws.Owns(filepath.Dir(ws.Root())))
	assert.False(t, ws.Owns("/jre-videos/abc.mp4"))
	assert.False(t, ws.Owns(ws.Root()+"-sibling/file.mp4"))
	assert.True(t, ws.Owns(filepath.Join(ws.Root(), "sources", "a.mp4")))
}

func TestWorkspace_Release(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "J1")
	require.NoError(t, err)

	inside := filepath.Join(ws.Root(), sourcesDir, "v1.mp4")
	require.NoError(t, os.WriteFile(inside, []byte("data"), 0600))

	outside := filepath.Join(t.TempDir(), "mounted.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("data"), 0600))

	require.NoError(t, ws.Release(inside, outside, filepath.Join(ws.Root(), "missing.mp4")))

	assert.NoFileExists(t, inside)
	assert.FileExists(t, outside, "files outside the workspace must never be removed")
}

func TestWorkspace_CleanupIsIdempotent(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "J1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.OutputPath(), []byte("video"), 0600))

	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, ws.Root())

	assert.NoError(t, ws.Cleanup())
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"a-b_c":        "a-b_c",
		"../x":         "___x",
		"with space":   "with_space",
		"":             "_",
		"j/o\\b:1":     "j_o_b_1",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), "SafeName(%q)", in)
	}
}

func TestUniqueName(t *testing.T) {
	assert.Equal(t, "dQw4w9WgXcQ", UniqueName("dQw4w9WgXcQ"))
	assert.Equal(t, "a_b", UniqueName("a_b"))

	dotted := UniqueName("a.b")
	assert.Regexp(t, `^a_b~[0-9a-f]{12}$`, dotted)
	assert.Equal(t, dotted, UniqueName("a.b"))
	assert.NotEqual(t, UniqueName("a.b"), UniqueName("a b"))
}

func TestWorkspace_SourceDirsDoNotCollide(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "J1")
	require.NoError(t, err)

	plain, err := ws.SourceDir("a_b")
	require.NoError(t, err)
	dotted, err := ws.SourceDir("a.b")
	require.NoError(t, err)

	assert.NotEqual(t, plain, dotted)
	assert.Equal(t, filepath.Dir(plain), filepath.Dir(dotted))
}
