package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name   string
		path   string
		data   []byte
		locked bool
		seed   []byte
	}{
		{name: "write to new file", path: filepath.Join(tmpDir, "new.yaml"), data: []byte("version: 1\n")},
		{name: "overwrite existing file", path: filepath.Join(tmpDir, "existing.yaml"), data: []byte("version: 2\n"), seed: []byte("version: 1\n")},
		{name: "write empty file", path: filepath.Join(tmpDir, "empty.yaml"), data: []byte{}},
		{name: "write to nested directory", path: filepath.Join(tmpDir, "nested", "deep", "state.yaml"), data: []byte("reviews: []\n")},
		{name: "locked write", path: filepath.Join(tmpDir, "locked.yaml"), data: []byte("version: 3\n"), locked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.seed != nil {
				require.NoError(t, os.WriteFile(tt.path, tt.seed, 0644))
			}

			var err error
			if tt.locked {
				err = AtomicWriteLocked(tt.path, tt.data)
			} else {
				err = AtomicWrite(tt.path, tt.data)
			}
			require.NoError(t, err)

			content, err := os.ReadFile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, string(tt.data), string(content))

			info, err := os.Stat(tt.path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		})
	}
}

func TestAtomicWriteNoTempFilesLeft(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "state.yaml")

	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWriteLocked(testFile, []byte("content")))
	}

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, "state.yaml", entry.Name(), "unexpected file left behind")
	}
}

func TestAtomicWriteConcurrency(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "concurrent.yaml")

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			done <- AtomicWriteLocked(testFile, []byte("concurrent write"))
		}()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-done)
	}

	content, err := os.ReadFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, "concurrent write", string(content))
}

func TestReadFileLimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_KEY=abcdef"), 0600))

	content, err := ReadFileLimited(path, 7)
	require.NoError(t, err)
	assert.Equal(t, "API_KEY", string(content))

	_, err = ReadFileLimited(filepath.Join(t.TempDir(), "missing"), 10)
	assert.Error(t, err)
}

func TestLocksAreReentrantAcrossDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	first, err := os.Open(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := os.Open(path)
	require.NoError(t, err)
	defer second.Close()

	unlockFirst, err := LockShared(first)
	require.NoError(t, err)
	unlockSecond, err := LockShared(second)
	require.NoError(t, err, "shared locks must not block each other")
	unlockFirst()
	unlockSecond()

	unlock, err := LockExclusive(first)
	require.NoError(t, err)
	unlock()
}

func TestValidatePath(t *testing.T) {
	base := "/home/u/reviews"

	tests := []struct {
		name      string
		candidate string
		want      string
		wantErr   bool
	}{
		{name: "relative name joins base", candidate: "pr-5", want: "/home/u/reviews/pr-5"},
		{name: "nested absolute inside base", candidate: "/home/u/reviews/sub/pr-5", want: "/home/u/reviews/sub/pr-5"},
		{name: "base itself", candidate: "/home/u/reviews", want: "/home/u/reviews"},
		{name: "redundant separators and dots", candidate: "./sub//pr-6/.", want: "/home/u/reviews/sub/pr-6"},
		{name: "parent traversal", candidate: "../../etc", wantErr: true},
		{name: "traversal hidden mid-path", candidate: "sub/../../etc", wantErr: true},
		{name: "absolute outside base", candidate: "/etc/passwd", wantErr: true},
		{name: "sibling with shared prefix", candidate: "/home/u/reviews-old/pr-1", wantErr: true},
		{name: "empty", candidate: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.candidate, base)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePathDotDotInsideName(t *testing.T) {
	got, err := ValidatePath("pr..5", "/srv/reviews")
	require.NoError(t, err)
	assert.Equal(t, "/srv/reviews/pr..5", got)
}

func TestValidatePathSymlinkEscape(t *testing.T) {
	tmpDir := t.TempDir()
	base := filepath.Join(tmpDir, "reviews")
	outside := filepath.Join(tmpDir, "outside")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.MkdirAll(outside, 0755))

	link := filepath.Join(base, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := ValidatePath("escape/pr-1", base)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)

	inside := filepath.Join(base, "inner")
	require.NoError(t, os.MkdirAll(inside, 0755))
	require.NoError(t, os.Symlink(inside, filepath.Join(base, "alias")))

	got, err := ValidatePath("alias/pr-2", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alias", "pr-2"), got)
}

func TestValidatePathNonexistentBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "not", "yet", "created")

	got, err := ValidatePath("pr-9", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "pr-9"), got)
}
