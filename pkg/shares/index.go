// Package shares maintains the queryable catalog of locally advertised
// files.
//
// The active catalog lives behind an atomic pointer. A refill scans the
// configured roots into a side structure and swaps the pointer when
// complete, so readers always see one coherent catalog: the old one or the
// new one, never a mix. Agent nodes federate their own catalogs in through
// SetAgentCatalog; the merged view is rebuilt without touching the disk.
package shares

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/state"
)

// Resolution is the outcome of mapping an overlay filename to its content.
type Resolution struct {
	// LocalPath is the host path for locally hosted files.
	LocalPath string

	// Agent names the hosting agent for federated files; when set,
	// LocalPath is empty and the transfer engine must fetch the bytes
	// through the agent fabric using Path.
	Agent string

	// Path is the overlay-form path, as the agent knows the file.
	Path string

	Size int64
}

// Index is the shared-file index.
type Index struct {
	catalog atomic.Pointer[Catalog]

	// refillMu serializes refills; readers never take it.
	refillMu sync.Mutex
	filling  atomic.Bool

	mu      sync.Mutex
	cfg     config.SharesConfig
	roots   []Root
	agents  map[string][]File
	scanned []File

	cache *diskCache

	states *state.Store
	bus    *events.Bus
}

// New builds an index from the shares configuration. With disk storage the
// previous catalog is served immediately; either way the first Refill must
// be triggered by the caller.
func New(cfg config.SharesConfig, states *state.Store, bus *events.Bus) (*Index, error) {
	roots, err := ParseRoots(cfg.Roots)
	if err != nil {
		return nil, err
	}
	if _, err := compileFilters(cfg.Filters); err != nil {
		return nil, seekerr.Wrap(seekerr.KindConfiguration, "invalid share filter", err)
	}

	ix := &Index{
		cfg:    cfg,
		roots:  roots,
		agents: make(map[string][]File),
		states: states,
		bus:    bus,
	}
	ix.catalog.Store(newCatalog(nil))

	if cfg.Storage == "disk" {
		cache, err := openDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, seekerr.Wrap(seekerr.KindLocalIO, "opening share catalog cache", err)
		}
		ix.cache = cache

		if files, builtAt, ok := cache.load(); ok {
			ix.scanned = files
			ix.swap(files)
			logger.Info("share catalog restored from cache",
				logger.Files(len(files)), "built_at", builtAt)
		}
	}

	return ix, nil
}

// Close releases the on-disk cache, when one is open. Safe to call twice.
func (ix *Index) Close() error {
	ix.mu.Lock()
	cache := ix.cache
	ix.cache = nil
	ix.mu.Unlock()
	if cache != nil {
		return cache.Close()
	}
	return nil
}

// Current returns the active catalog.
func (ix *Index) Current() *Catalog {
	return ix.catalog.Load()
}

// Counts returns the visible directory and file counts.
func (ix *Index) Counts() (directories, files int) {
	return ix.Current().Counts()
}

// Refill scans all configured roots and atomically swaps in the resulting
// catalog. At most one refill runs at a time; a concurrent call fails with
// PreconditionFailed. Fill progress is published to the state store at each
// 10-percentage-point boundary.
func (ix *Index) Refill(ctx context.Context) error {
	if !ix.refillMu.TryLock() {
		return seekerr.New(seekerr.KindPreconditionFailed, "share scan already in progress")
	}
	defer ix.refillMu.Unlock()

	ix.mu.Lock()
	cfg := ix.cfg
	cache := ix.cache
	roots := make([]Root, len(ix.roots))
	copy(roots, ix.roots)
	ix.mu.Unlock()

	filters, err := compileFilters(cfg.Filters)
	if err != nil {
		return seekerr.Wrap(seekerr.KindConfiguration, "invalid share filter", err)
	}

	ix.filling.Store(true)
	started := time.Now()
	ix.publishScanState(0, false)
	ix.bus.Publish(events.ScanEvent{BaseEvent: events.NewBase(events.EventScanStarted)})

	// The previous catalog's size estimates fill progress; a first scan
	// reports only start and completion.
	_, estimate := ix.Current().Counts()
	var seen atomic.Int64
	var lastDecile atomic.Int64

	workers := cfg.ScanWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sc := &scanner{
		roots:   roots,
		filters: filters,
		workers: workers,
		onFile: func() {
			n := seen.Add(1)
			if estimate <= 0 {
				return
			}
			progress := float64(n) / float64(estimate)
			if progress > 0.99 {
				progress = 0.99
			}
			decile := int64(progress * 10)
			if prev := lastDecile.Load(); decile > prev && lastDecile.CompareAndSwap(prev, decile) {
				ix.publishScanState(progress, false)
				ix.bus.Publish(events.ScanEvent{
					BaseEvent: events.NewBase(events.EventScanProgress),
					Progress:  progress,
				})
			}
		},
	}

	files, err := sc.scan(ctx)
	if err != nil {
		ix.filling.Store(false)
		ix.publishScanState(0, true)
		ix.bus.Publish(events.ScanEvent{
			BaseEvent: events.NewBase(events.EventScanFaulted),
			Faulted:   true,
		})
		logger.Error("share scan failed", logger.Err(err))
		return seekerr.Wrap(seekerr.KindLocalIO, "scanning shares", err)
	}

	ix.mu.Lock()
	ix.scanned = files
	ix.mu.Unlock()

	catalog := ix.swap(files)
	ix.filling.Store(false)

	if cache != nil {
		if err := cache.save(files, catalog.BuiltAt); err != nil {
			logger.Warn("failed to persist share catalog cache", logger.Err(err))
		}
	}

	dirs, total := catalog.Counts()
	ix.publishScanState(1, false)
	ix.bus.Publish(events.ScanEvent{
		BaseEvent:   events.NewBase(events.EventScanComplete),
		Progress:    1,
		Directories: dirs,
		Files:       total,
	})
	logger.Info("share scan complete",
		logger.Directories(dirs), logger.Files(total),
		"duration", time.Since(started))
	return nil
}

// swap rebuilds the merged catalog from scanned plus agent files and
// installs it.
func (ix *Index) swap(scanned []File) *Catalog {
	ix.mu.Lock()
	merged := make([]File, 0, len(scanned))
	merged = append(merged, scanned...)
	for _, files := range ix.agents {
		merged = append(merged, files...)
	}
	ix.mu.Unlock()

	catalog := newCatalog(merged)
	ix.catalog.Store(catalog)
	return catalog
}

func (ix *Index) publishScanState(progress float64, faulted bool) {
	if ix.states == nil {
		return
	}
	dirs, files := ix.Current().Counts()
	ix.states.Update(func(s state.Snapshot) state.Snapshot {
		return s.WithScan(state.ScanState{
			Filling:      ix.filling.Load(),
			FillProgress: progress,
			Directories:  dirs,
			Files:        files,
			Faulted:      faulted,
		})
	})
}

// Search answers a peer search: hidden roots are excluded and the response
// is truncated to the configured limit.
func (ix *Index) Search(ctx context.Context, query string) ([]File, error) {
	return ix.search(ctx, query, false)
}

// SearchAll answers an operator search, which also sees hidden roots.
func (ix *Index) SearchAll(ctx context.Context, query string) ([]File, error) {
	return ix.search(ctx, query, true)
}

func (ix *Index) search(ctx context.Context, query string, includeHidden bool) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, seekerr.Wrap(seekerr.KindCancelled, "search", err)
	}

	ix.mu.Lock()
	limit := ix.cfg.ResponseLimit
	dropSingles := ix.cfg.DropSingleCharacterTerms()
	ix.mu.Unlock()

	tokens := tokenize(query)
	if dropSingles {
		kept := tokens[:0]
		for _, t := range tokens {
			if len(t) > 1 {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	return ix.Current().Search(tokens, limit, includeHidden), nil
}

// Browse returns the visible directory tree.
func (ix *Index) Browse(ctx context.Context) []Directory {
	return ix.Current().Browse()
}

// List returns one directory by overlay path.
func (ix *Index) List(ctx context.Context, directoryPath string) (Directory, error) {
	d, ok := ix.Current().List(directoryPath)
	if !ok {
		return Directory{}, seekerr.Newf(seekerr.KindNotFound, "directory %q is not shared", directoryPath)
	}
	return d, nil
}

// Resolve maps an overlay filename to its content location.
func (ix *Index) Resolve(ctx context.Context, remoteName string) (Resolution, error) {
	f, ok := ix.Current().Lookup(remoteName)
	if !ok {
		return Resolution{}, seekerr.Newf(seekerr.KindNotFound, "file %q is not shared", remoteName)
	}
	return Resolution{
		LocalPath: f.LocalPath,
		Agent:     f.Agent,
		Path:      f.Path,
		Size:      f.Size,
	}, nil
}

// SetAgentCatalog installs or replaces one agent's federated catalog and
// rebuilds the merged view.
func (ix *Index) SetAgentCatalog(agent string, files []File) {
	normalized := make([]File, len(files))
	for i, f := range files {
		f.Agent = agent
		f.LocalPath = ""
		if f.Name == "" {
			if j := strings.LastIndexByte(f.Path, '\\'); j >= 0 {
				f.Name = f.Path[j+1:]
			} else {
				f.Name = f.Path
			}
		}
		normalized[i] = f
	}

	ix.mu.Lock()
	ix.agents[agent] = normalized
	scanned := ix.scanned
	ix.mu.Unlock()

	ix.swap(scanned)
	logger.Info("agent share catalog installed", logger.Agent(agent), logger.Files(len(files)))
}

// RemoveAgentCatalog drops a disconnected agent's files from the catalog.
func (ix *Index) RemoveAgentCatalog(agent string) {
	ix.mu.Lock()
	if _, ok := ix.agents[agent]; !ok {
		ix.mu.Unlock()
		return
	}
	delete(ix.agents, agent)
	scanned := ix.scanned
	ix.mu.Unlock()

	ix.swap(scanned)
	logger.Info("agent share catalog removed", logger.Agent(agent))
}

// Reconfigure applies a new shares configuration. Changed roots or filters
// take effect at the next Refill, which the caller is expected to trigger
// per the configuration change verdict.
func (ix *Index) Reconfigure(cfg config.SharesConfig) error {
	roots, err := ParseRoots(cfg.Roots)
	if err != nil {
		return err
	}
	if _, err := compileFilters(cfg.Filters); err != nil {
		return seekerr.Wrap(seekerr.KindConfiguration, "invalid share filter", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	// Storage relocation requires a restart; keep serving the open cache.
	cfg.Storage = ix.cfg.Storage
	cfg.CacheDir = ix.cfg.CacheDir
	ix.cfg = cfg
	ix.roots = roots
	return nil
}
