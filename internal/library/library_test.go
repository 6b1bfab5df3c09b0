package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "nested", "downloads")

	lib, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, lib.Root())
	assert.DirExists(t, root)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "spaces", title: "Test Clip", want: "Test_Clip"},
		{name: "reserved characters", title: `a/b\c*d?e:f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "traversal", title: "../../etc/passwd", want: "etc_passwd"},
		{name: "leading dots", title: "...hidden", want: "hidden"},
		{name: "only separators", title: "/..//", want: "fallback"},
		{name: "empty", title: "   ", want: "fallback"},
		{name: "control characters", title: "line\nbreak\ttab", want: "line_break_tab"},
		{name: "unicode kept", title: "Café clip", want: "Café_clip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitle(tt.title, "fallback"))
		})
	}
}

func TestSanitizeTitleTruncates(t *testing.T) {
	long := strings.Repeat("é", 500)
	got := SanitizeTitle(long, "fallback")

	assert.LessOrEqual(t, len(got), maxTitleLength)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestPathFor(t *testing.T) {
	lib, err := New(t.TempDir())
	require.NoError(t, err)

	p, err := lib.PathFor("Test_Clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lib.Root(), "Test_Clip.mp4"), p)

	for _, name := range []string{"", ".", "..", "../x.mp4", "a/b.mp4", `a\b.mp4`} {
		_, err := lib.PathFor(name)
		assert.Error(t, err, name)
	}
}

func TestContains(t *testing.T) {
	lib, err := New(t.TempDir())
	require.NoError(t, err)

	assert.True(t, lib.Contains(filepath.Join(lib.Root(), "video.mp4")))
	assert.True(t, lib.Contains(filepath.Join(lib.Root(), "sub", "video.mp4")))
	assert.False(t, lib.Contains(lib.Root()))
	assert.False(t, lib.Contains(filepath.Join(lib.Root(), "..", "video.mp4")))
	assert.False(t, lib.Contains(lib.Root()+"-sibling/video.mp4"))
}

func TestList(t *testing.T) {
	lib, err := New(t.TempDir())
	require.NoError(t, err)

	older := filepath.Join(lib.Root(), "older.mp4")
	newer := filepath.Join(lib.Root(), "newer.webm")
	require.NoError(t, os.WriteFile(older, []byte("older"), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("newer!"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	// Should be ignored
	require.NoError(t, os.WriteFile(filepath.Join(lib.Root(), "partial.mp4"+PartialSuffix), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(lib.Root(), ".hidden"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(lib.Root(), "dir"), 0755))

	entries, err := lib.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "newer.webm", entries[0].Name)
	assert.Equal(t, int64(6), entries[0].Size)
	assert.Equal(t, "older.mp4", entries[1].Name)
	assert.Equal(t, older, entries[1].Path)
}

func TestStat(t *testing.T) {
	lib, err := New(t.TempDir())
	require.NoError(t, err)

	p := filepath.Join(lib.Root(), "clip.mp4")
	require.NoError(t, os.WriteFile(p, []byte("content"), 0644))

	entry, err := lib.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Size)

	_, err = lib.Stat(filepath.Join(lib.Root(), "missing.mp4"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = lib.Stat("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestRemove(t *testing.T) {
	lib, err := New(t.TempDir())
	require.NoError(t, err)

	p := filepath.Join(lib.Root(), "clip.mp4")
	require.NoError(t, os.WriteFile(p, []byte("content"), 0644))

	require.NoError(t, lib.Remove(p))
	assert.NoFileExists(t, p)

	assert.ErrorIs(t, lib.Remove(p), ErrFileNotFound)

	outside := filepath.Join(t.TempDir(), "keep.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0644))
	assert.ErrorIs(t, lib.Remove(outside), ErrOutsideRoot)
	assert.FileExists(t, outside)
}

func TestEntryID(t *testing.T) {
	assert.Equal(t, "file_Test_Clip.mp4", EntryID("Test_Clip.mp4"))
	assert.Regexp(t, `^file_Test_Clip\.mp4~[0-9a-f]{8}$`, EntryID("Test Clip.mp4"))
	assert.Equal(t, EntryID("Test Clip.mp4"), EntryID("Test Clip.mp4"))
}

func TestEntryID_Distinct(t *testing.T) {
	names := []string{"a_b.mp4", "a b.mp4", "a&b.mp4", "a%b.mp4", "a~b.mp4"}

	seen := make(map[string]string, len(names))
	for _, name := range names {
		id := EntryID(name)
		other, dup := seen[id]
		assert.False(t, dup, "%q and %q share ID %s", name, other, id)
		seen[id] = name
	}
}
