package shares

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"

	"github.com/seekd/seekd/internal/logger"
)

// scanner walks the configured roots and produces the file list a catalog
// is built from.
type scanner struct {
	roots   []Root
	filters []*regexp.Regexp
	workers int

	// onFile fires for every retained file, for progress accounting.
	onFile func()
}

// compileFilters compiles the configured exclusion patterns. An invalid
// pattern is a configuration error surfaced to the caller.
func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	filters := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		filters = append(filters, re)
	}
	return filters, nil
}

// scan walks every root with the configured parallelism and returns the
// retained files. The walk stops at the first root whose traversal fails
// outright; unreadable entries inside a root are skipped and logged.
func (s *scanner) scan(ctx context.Context) ([]File, error) {
	g, ctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}

	var mu sync.Mutex
	var all []File
	var skipped atomic.Int64

	for _, root := range s.roots {
		g.Go(func() error {
			files, err := s.scanRoot(ctx, root, &skipped)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, files...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if n := skipped.Load(); n > 0 {
		logger.Warn("share scan skipped unreadable entries", logger.Count(int(n)))
	}
	return all, nil
}

func (s *scanner) scanRoot(ctx context.Context, root Root, skipped *atomic.Int64) ([]File, error) {
	var files []File

	err := godirwalk.Walk(root.Path, &godirwalk.Options{
		Unsorted: true, // catalog construction sorts; walk order is irrelevant
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || !de.IsRegular() {
				return nil
			}
			if s.excluded(path) {
				return nil
			}

			rel, err := filepath.Rel(root.Path, path)
			if err != nil {
				return nil
			}

			st, err := os.Stat(path)
			if err != nil {
				skipped.Add(1)
				return nil
			}

			ext := strings.TrimPrefix(filepath.Ext(path), ".")
			f := File{
				Path:      root.toOverlay(rel),
				Name:      filepath.Base(path),
				Size:      st.Size(),
				Extension: ext,
				Audio:     probeAudio(path, ext),
				Hidden:    root.Hidden,
				LocalPath: path,
			}
			files = append(files, f)
			if s.onFile != nil {
				s.onFile()
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			if ctx.Err() != nil {
				return godirwalk.Halt
			}
			skipped.Add(1)
			logger.Debug("share scan skipping entry", logger.LocalPath(path), logger.Err(err))
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *scanner) excluded(path string) bool {
	for _, re := range s.filters {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
