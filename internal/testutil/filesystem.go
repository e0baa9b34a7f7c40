package testutil

import (
	"bytes"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pv-go/internal/fs"
	"pv-go/internal/pv"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions iofs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileWithModTime(path, content, time.Now())
}

// AddFileWithModTime adds a file with an explicit modification time.
func (m *MockFilesystemManager) AddFileWithModTime(path string, content []byte, modTime time.Time) {
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     modTime,
		IsDirectory: false,
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// SetContent replaces a file's content without touching its modification
// time. Useful for exercising stale cache behavior.
func (m *MockFilesystemManager) SetContent(path string, content []byte) {
	if file, ok := m.files[path]; ok {
		file.Content = content
	}
}

// Touch updates a file's modification time.
func (m *MockFilesystemManager) Touch(path string, modTime time.Time) {
	if file, ok := m.files[path]; ok {
		file.ModTime = modTime
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*pv.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}

	return pv.NewPath(absPath, file.IsDirectory, m.fileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *pv.Path) (io.ReadCloser, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *pv.Path) (iofs.FileInfo, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return m.fileInfo(path.String(), file), nil
}

func (m *MockFilesystemManager) FindPhotos(path *pv.Path, recursive bool) ([]*pv.Path, error) {
	dir, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if !dir.IsDirectory {
		return nil, fmt.Errorf("not a directory: %s", path.String())
	}

	prefix := path.String() + string(filepath.Separator)

	var names []string
	for name, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !recursive && strings.ContainsRune(name[len(prefix):], filepath.Separator) {
			continue
		}
		if !fs.IsPhoto(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	photos := make([]*pv.Path, 0, len(names))
	for _, name := range names {
		photos = append(photos, pv.NewPath(name, false, m.fileInfo(name, m.files[name])))
	}
	return photos, nil
}

func (m *MockFilesystemManager) fileInfo(path string, file *MockFile) iofs.FileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    iofs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string        { return m.name }
func (m *mockFileInfo) Size() int64         { return m.size }
func (m *mockFileInfo) Mode() iofs.FileMode { return m.mode }
func (m *mockFileInfo) ModTime() time.Time  { return m.modTime }
func (m *mockFileInfo) IsDir() bool         { return m.isDir }
func (m *mockFileInfo) Sys() any            { return nil }

// Compile-time check
var _ pv.FilesystemManager = (*MockFilesystemManager)(nil)
