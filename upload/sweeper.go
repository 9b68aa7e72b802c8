package upload

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog/log"
)

// Sweeper removes the staged files of one request. Files are tracked when
// they are created, so the sweep covers partial writes too.
type Sweeper struct {
	mu    sync.Mutex
	fs    billy.Filesystem
	dir   string
	paths []string
	swept bool
}

// NewSweeper returns a sweeper for files staged under dir. dir itself is
// removed by Sweep.
func NewSweeper(fs billy.Filesystem, dir string) *Sweeper {
	return &Sweeper{
		fs:  fs,
		dir: dir,
	}
}

func (s *Sweeper) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

// Paths returns the tracked staged files.
func (s *Sweeper) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Sweep deletes every tracked file and the request directory. It is best
// effort: failures are logged and the sweep moves on. Only the first call
// does any work. It returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swept {
		return 0
	}
	s.swept = true

	logger := log.Ctx(ctx)
	removed := 0
	for _, p := range s.paths {
		err := s.fs.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			logger.Warn().Err(err).Str("staged_file", p).Msg("failed to remove staged file")
		}
	}

	if s.dir != "" {
		if err := util.RemoveAll(s.fs, s.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("dir", s.dir).Msg("failed to remove scratch directory")
		}
	}

	logger.Debug().Int("removed", removed).Msg("staged files swept")
	return removed
}
