// Package packager groups exported transcripts into fixed-size zip archives.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// DefaultPattern selects exported transcripts.
const DefaultPattern = "*.txt"

// Packager slices the matching files of a directory into archives of at
// most BatchSize files each. Membership is positional: files are sorted by
// name and cut into consecutive windows.
type Packager struct {
	dir       string
	batchSize int
	match     glob.Glob
}

// Result describes one packaging pass.
type Result struct {
	Files    int
	Archives []string
}

// New creates a packager for dir. pattern is a glob over base names.
func New(dir string, batchSize int, pattern string) (*Packager, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	return &Packager{dir: dir, batchSize: batchSize, match: g}, nil
}

// Pack archives the transcripts of dir in batches of batchSize and returns
// how many archives were written.
func Pack(dir string, batchSize int) (int, error) {
	p, err := New(dir, batchSize, DefaultPattern)
	if err != nil {
		return 0, err
	}
	res, err := p.Pack()
	return len(res.Archives), err
}

// ArchiveName is the file name of the i-th (1-based) archive.
func ArchiveName(i int) string {
	return fmt.Sprintf("batch_%03d.zip", i)
}

// Files lists the matching regular files of the directory, sorted by name.
func (p *Packager) Files() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p.dir, err)
	}

	// ReadDir already sorts by file name
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !p.match.Match(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// Pack writes ceil(N/batchSize) archives next to the files. Existing
// archives with the same names are replaced.
func (p *Packager) Pack() (Result, error) {
	files, err := p.Files()
	if err != nil {
		return Result{}, err
	}

	res := Result{Files: len(files)}
	for start, i := 0, 1; start < len(files); start, i = start+p.batchSize, i+1 {
		end := start + p.batchSize
		if end > len(files) {
			end = len(files)
		}

		archive := filepath.Join(p.dir, ArchiveName(i))
		if err := p.writeArchive(archive, files[start:end]); err != nil {
			return res, err
		}
		res.Archives = append(res.Archives, archive)
	}
	return res, nil
}

func (p *Packager) writeArchive(path string, names []string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := p.addFile(zw, name); err != nil {
			zw.Close()
			return fmt.Errorf("failed to add %s to %s: %w", name, filepath.Base(path), err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (p *Packager) addFile(zw *zip.Writer, name string) error {
	file, err := os.Open(filepath.Join(p.dir, name))
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}
