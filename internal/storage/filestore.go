// Package storage manages the blobs behind file records: streamed writes with
// an inline SHA-256, same-filesystem moves and tolerant removal.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Dirs are the three roots a stored file may live under.
type Dirs struct {
	Uploads string
	Tmp     string
	Outputs string
}

// DirsUnder lays the roots out beneath dataDir.
func DirsUnder(dataDir string) Dirs {
	return Dirs{
		Uploads: filepath.Join(dataDir, "uploads"),
		Tmp:     filepath.Join(dataDir, "tmp"),
		Outputs: filepath.Join(dataDir, "outputs"),
	}
}

// All returns the roots in a fixed order.
func (d Dirs) All() []string {
	return []string{d.Uploads, d.Tmp, d.Outputs}
}

// Blob describes a file written or inspected by the store.
type Blob struct {
	Path     string
	Size     int64
	Checksum string
}

// FileStore performs blob I/O on an afero filesystem.
type FileStore struct {
	fs   afero.Fs
	dirs Dirs
}

// New creates the roots on fs when they are missing.
func New(fs afero.Fs, dirs Dirs) (*FileStore, error) {
	for _, dir := range dirs.All() {
		if dir == "" {
			return nil, errors.New("storage: empty root directory")
		}
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return &FileStore{fs: fs, dirs: dirs}, nil
}

// NewOS is New over the host filesystem.
func NewOS(dirs Dirs) (*FileStore, error) {
	return New(afero.NewOsFs(), dirs)
}

func (s *FileStore) Dirs() Dirs {
	return s.dirs
}

func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// NewName returns "<uuid>.<ext>", or a bare uuid when ext is empty.
func NewName(ext string) string {
	if ext == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + ext
}

// Save streams r into dir under a fresh name, hashing while writing. The
// data lands in a ".part" file first and is renamed once synced.
func (s *FileStore) Save(dir, ext string, r io.Reader) (*Blob, error) {
	path := filepath.Join(dir, NewName(ext))
	part := path + ".part"

	f, err := s.fs.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", part, err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(part)
		return nil, fmt.Errorf("storage: write %s: %w", path, err)
	}

	if err := s.fs.Rename(part, path); err != nil {
		_ = s.fs.Remove(part)
		return nil, fmt.Errorf("storage: rename %s: %w", path, err)
	}

	return &Blob{Path: path, Size: size, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Move renames src to dst. Both must be on the same filesystem.
func (s *FileStore) Move(src, dst string) error {
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("storage: move %s: %w", src, err)
	}
	return nil
}

// Open opens path for reading.
func (s *FileStore) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Create creates or truncates path for writing.
func (s *FileStore) Create(path string) (afero.File, error) {
	return s.fs.Create(path)
}

// Stat returns file info for path.
func (s *FileStore) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// Remove deletes path. A missing file is not an error.
func (s *FileStore) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path is present.
func (s *FileStore) Exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// Digest streams path once to compute its size and SHA-256.
func (s *FileStore) Digest(path string) (*Blob, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return nil, fmt.Errorf("storage: hash %s: %w", path, err)
	}
	return &Blob{Path: path, Size: size, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Head reads up to n leading bytes of path, for content sniffing.
func (s *FileStore) Head(path string, n int) ([]byte, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// MkdirTemp creates a scratch directory under the tmp root.
func (s *FileStore) MkdirTemp() (string, error) {
	return afero.TempDir(s.fs, s.dirs.Tmp, "job-")
}

// RemoveAll deletes dir and everything beneath it.
func (s *FileStore) RemoveAll(dir string) error {
	return s.fs.RemoveAll(dir)
}

// CheckWritable writes and removes a scratch file in dir.
func (s *FileStore) CheckWritable(dir string) error {
	scratch := filepath.Join(dir, ".writable-"+uuid.NewString())
	if err := afero.WriteFile(s.fs, scratch, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("storage: %s not writable: %w", dir, err)
	}
	return s.fs.Remove(scratch)
}
