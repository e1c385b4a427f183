// Package snapshot provides read-only metadata access to a mounted or
// extracted filesystem image. All paths are relative to the snapshot root;
// nothing in this package ever writes to the snapshot.
package snapshot

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Classified provider errors. A missing path is a normal, non-fatal outcome
// for every caller; permission problems degrade a category, never the run.
var (
	ErrNotFound         = errors.New("path not found in snapshot")
	ErrPermissionDenied = errors.New("permission denied")
)

// FileRecord is the metadata for a single path, produced fresh per query.
type FileRecord struct {
	Path          string // relative to the snapshot root
	Exists        bool
	IsDir         bool
	Size          int64
	ModifiedAt    time.Time
	AttrChangedAt time.Time
}

// Provider is the read-only metadata source the category scanners consume.
type Provider interface {
	// Stat returns metadata for the given relative path, or ErrNotFound.
	Stat(relPath string) (FileRecord, error)

	// ListDirectory returns the sorted entry names of a directory, or
	// ErrNotFound / ErrPermissionDenied.
	ListDirectory(relPath string) ([]string, error)

	// Open opens a file for reading structured artifacts (plists).
	Open(relPath string) (io.ReadCloser, error)

	// Root returns the absolute snapshot root path. Used to address
	// artifacts that need their own reader, such as SQLite databases.
	Root() string
}

// OS is a Provider backed by the local filesystem.
type OS struct {
	root string
}

// NewOS returns a provider rooted at the given directory. The root must
// exist and be a directory; anything else is a fatal run error.
func NewOS(root string) (*OS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, classify(err)
	}
	if !info.IsDir() {
		return nil, errors.New("snapshot root is not a directory")
	}
	return &OS{root: abs}, nil
}

// Root returns the absolute snapshot root.
func (p *OS) Root() string { return p.root }

// Stat implements Provider.
func (p *OS) Stat(relPath string) (FileRecord, error) {
	full := filepath.Join(p.root, filepath.FromSlash(relPath))
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileRecord{Path: relPath}, ErrNotFound
		}
		return FileRecord{Path: relPath}, classify(err)
	}
	return FileRecord{
		Path:          relPath,
		Exists:        true,
		IsDir:         info.IsDir(),
		Size:          info.Size(),
		ModifiedAt:    info.ModTime(),
		AttrChangedAt: attrChangeTime(info),
	}, nil
}

// ListDirectory implements Provider.
func (p *OS) ListDirectory(relPath string) ([]string, error) {
	full := filepath.Join(p.root, filepath.FromSlash(relPath))
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, classify(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open implements Provider.
func (p *OS) Open(relPath string) (io.ReadCloser, error) {
	full := filepath.Join(p.root, filepath.FromSlash(relPath))
	f, err := os.Open(full)
	if err != nil {
		return nil, classify(err)
	}
	return f, nil
}

// classify maps an os error onto the provider taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return err
	}
}
