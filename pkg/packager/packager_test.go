package packager

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, n int) []string {
	t.Helper()
	var names []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%05d.txt", 1000+i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("transcript "+name), 0644))
		names = append(names, name)
	}
	return names
}

func archiveEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		names = append(names, f.Name)
	}
	return names
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "batch_001.zip", ArchiveName(1))
	assert.Equal(t, "batch_042.zip", ArchiveName(42))
	assert.Equal(t, "batch_1000.zip", ArchiveName(1000))
}

func TestPackPartition(t *testing.T) {
	tests := []struct {
		files, batch int
		wantSizes    []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{150, 100, []int{100, 50}},
		{7, 3, []int{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d files by %d", tt.files, tt.batch), func(t *testing.T) {
			dir := t.TempDir()
			names := writeFiles(t, dir, tt.files)

			p, err := New(dir, tt.batch, "")
			require.NoError(t, err)
			res, err := p.Pack()
			require.NoError(t, err)

			assert.Equal(t, tt.files, res.Files)
			require.Len(t, res.Archives, len(tt.wantSizes))

			var union []string
			for i, archive := range res.Archives {
				assert.Equal(t, filepath.Join(dir, ArchiveName(i+1)), archive)
				entries := archiveEntries(t, archive)
				assert.Len(t, entries, tt.wantSizes[i])
				union = append(union, entries...)
			}

			// Strict partition: every file exactly once, in sorted order.
			sort.Strings(names)
			if len(names) == 0 {
				assert.Empty(t, union)
			} else {
				assert.Equal(t, names, union)
			}
		})
	}
}

func TestPackIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".1.txt.123.tmp"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0755))

	n, err := Pack(dir, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"01000.txt", "01001.txt"}, archiveEntries(t, filepath.Join(dir, ArchiveName(1))))
}

func TestPackIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 3)

	for i := 0; i < 2; i++ {
		n, err := Pack(dir, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Len(t, archiveEntries(t, filepath.Join(dir, ArchiveName(1))), 2)
	assert.Len(t, archiveEntries(t, filepath.Join(dir, ArchiveName(2))), 1)
}

func TestNewErrors(t *testing.T) {
	_, err := New(t.TempDir(), 0, "")
	assert.Error(t, err)

	_, err = New(t.TempDir(), 10, "[")
	assert.Error(t, err)
}

func TestPackMissingDirectory(t *testing.T) {
	_, err := Pack(filepath.Join(t.TempDir(), "absent"), 10)
	assert.Error(t, err)
}
