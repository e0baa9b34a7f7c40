package pv

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for local filesystem operations.
// It abstracts file access so scans can be tested without a real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It normalizes the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	// Unlike path.Info() which returns cached info from when the path was
	// resolved, this always fetches current info from the filesystem.
	Stat(path *Path) (fs.FileInfo, error)

	// FindPhotos discovers photo files under the given directory path,
	// returning only files whose extension matches a known photo format.
	// When recursive is true, subdirectories are included.
	FindPhotos(path *Path, recursive bool) ([]*Path, error)
}
