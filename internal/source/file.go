package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/keithlinneman/chunkd/internal/pathutil"
)

// File opens a local file. When constructed with a root, the reference is
// confined under it so catalog entries cannot reach outside the content
// tree.
type File struct {
	path string
}

func NewFile(root, name string) (*File, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidRef)
	}
	if root == "" {
		return &File{path: filepath.Clean(name)}, nil
	}
	if filepath.IsAbs(name) || pathutil.HasDotSegments(filepath.ToSlash(name)) {
		return nil, fmt.Errorf("%w: %q escapes the content root", ErrInvalidRef, name)
	}
	return &File{path: filepath.Join(root, name)}, nil
}

func (f *File) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	h, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, f.path)
	} else if err != nil {
		return nil, err
	}
	return h, nil
}

func (f *File) Stat(ctx context.Context) (Info, error) {
	st, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotExist, f.path)
	} else if err != nil {
		return Info{}, err
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%w: %s is a directory", ErrInvalidRef, f.path)
	}
	return Info{Name: st.Name(), Size: st.Size()}, nil
}
