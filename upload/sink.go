package upload

import (
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
)

type syncer interface {
	Sync() error
}

// sink streams one file part into a staged file. The decoder writes into it
// while run drains the other end of the pipe on its own goroutine.
type sink struct {
	fs   billy.Filesystem
	path string
	pr   *io.PipeReader
	pw   *io.PipeWriter
}

func newSink(fs billy.Filesystem, path string) *sink {
	pr, pw := io.Pipe()
	return &sink{
		fs:   fs,
		path: path,
		pr:   pr,
		pw:   pw,
	}
}

func (s *sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// finish signals end of data to run.
func (s *sink) finish() {
	s.pw.Close()
}

// abort makes run fail with err instead of committing the file.
func (s *sink) abort(err error) {
	s.pw.CloseWithError(err)
}

// run creates the staged file exclusively, copies the stream into it, syncs
// and closes it. It only returns nil once the bytes are on disk and the handle
// is closed; a reader may open the file after that.
func (s *sink) run() (int64, error) {
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		err = fmt.Errorf("failed to create staged file %s: %w", s.path, err)
		s.pr.CloseWithError(err)
		return 0, err
	}

	n, err := io.Copy(f, s.pr)
	if err != nil {
		f.Close()
		err = fmt.Errorf("failed to write staged file %s: %w", s.path, err)
		s.pr.CloseWithError(err)
		return n, err
	}

	if sf, ok := f.(syncer); ok {
		if err := sf.Sync(); err != nil {
			f.Close()
			return n, fmt.Errorf("failed to flush staged file %s: %w", s.path, err)
		}
	}

	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to close staged file %s: %w", s.path, err)
	}
	return n, nil
}
