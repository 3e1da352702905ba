package shares

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// AudioProperties is opportunistically probed audio metadata.
type AudioProperties struct {
	BitRate         int
	SampleRate      int
	DurationSecs    int
	VariableBitRate bool
}

// File is one cataloged file. Path is in overlay wire form (alias first,
// backslash separators); LocalPath is the host form and is empty for files
// hosted by an agent.
type File struct {
	Path      string
	Name      string
	Size      int64
	Extension string
	Audio     *AudioProperties

	// Agent names the hosting agent; empty means the file is local.
	Agent string

	// Hidden files belong to a hidden root.
	Hidden bool

	LocalPath string
}

// Directory is one cataloged directory in overlay form. Every ancestor of a
// cataloged file has a Directory entry, possibly with no files of its own.
type Directory struct {
	Path   string
	Files  []File
	Hidden bool
	Agent  string
}

// Catalog is one immutable snapshot of the shared-file index. Readers hold
// the catalog pointer for the duration of an operation; a concurrent refill
// swaps in a new catalog without disturbing them.
type Catalog struct {
	BuiltAt time.Time

	dirs     []Directory
	dirIndex map[string]int // lowercased overlay path -> dirs index

	files  []File
	tokens map[string][]int32 // lowercased word token -> ascending file indices

	resolve map[string]int // lowercased overlay file path -> files index

	visibleDirs  int
	visibleFiles int
}

// newCatalog indexes the given files into a queryable snapshot. Files are
// sorted by path so identical inputs produce identical catalogs.
func newCatalog(files []File) *Catalog {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	c := &Catalog{
		BuiltAt:  time.Now(),
		files:    sorted,
		tokens:   make(map[string][]int32),
		dirIndex: make(map[string]int),
		resolve:  make(map[string]int, len(sorted)),
	}

	dirFiles := make(map[string][]File)
	dirHidden := make(map[string]bool)
	dirAgent := make(map[string]string)

	for i, f := range c.files {
		key := strings.ToLower(f.Path)
		c.resolve[key] = i
		if !f.Hidden {
			c.visibleFiles++
		}

		for _, tok := range tokenize(f.Path) {
			posting := c.tokens[tok]
			if n := len(posting); n > 0 && posting[n-1] == int32(i) {
				continue
			}
			c.tokens[tok] = append(posting, int32(i))
		}

		// Register the parent directory and every ancestor up to the alias.
		dir := parentOverlay(f.Path)
		dirFiles[dir] = append(dirFiles[dir], f)
		for p := dir; p != ""; p = parentOverlay(p) {
			if _, seen := dirHidden[p]; !seen {
				dirHidden[p] = f.Hidden
				dirAgent[p] = f.Agent
			} else {
				// A directory reachable from any visible root is visible.
				if !f.Hidden {
					dirHidden[p] = false
				}
			}
		}
	}

	paths := make([]string, 0, len(dirHidden))
	for p := range dirHidden {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	c.dirs = make([]Directory, 0, len(paths))
	for _, p := range paths {
		d := Directory{
			Path:   p,
			Files:  dirFiles[p],
			Hidden: dirHidden[p],
			Agent:  dirAgent[p],
		}
		c.dirIndex[strings.ToLower(p)] = len(c.dirs)
		c.dirs = append(c.dirs, d)
		if !d.Hidden {
			c.visibleDirs++
		}
	}

	return c
}

// parentOverlay returns the overlay-form parent directory, or "" at an alias.
func parentOverlay(p string) string {
	i := strings.LastIndexByte(p, '\\')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// tokenize splits a path into lowercased word tokens. Runs of letters and
// digits form a token; everything else separates.
func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Counts returns the visible directory and file counts advertised to the
// overlay.
func (c *Catalog) Counts() (directories, files int) {
	return c.visibleDirs, c.visibleFiles
}

// Browse returns the visible directory tree.
func (c *Catalog) Browse() []Directory {
	out := make([]Directory, 0, c.visibleDirs)
	for _, d := range c.dirs {
		if d.Hidden {
			continue
		}
		out = append(out, d)
	}
	return out
}

// List returns one directory by overlay path, hidden or not.
func (c *Catalog) List(dirPath string) (Directory, bool) {
	i, ok := c.dirIndex[strings.ToLower(dirPath)]
	if !ok {
		return Directory{}, false
	}
	return c.dirs[i], true
}

// Lookup returns the cataloged file for an overlay path.
func (c *Catalog) Lookup(overlayPath string) (File, bool) {
	i, ok := c.resolve[strings.ToLower(overlayPath)]
	if !ok {
		return File{}, false
	}
	return c.files[i], true
}

// Search returns up to limit files matching every query token, in catalog
// order. A token matches when it appears as a whole word anywhere in the
// file's full overlay path, case-insensitively. Hidden files are excluded
// unless includeHidden is set (the operator's own searches).
func (c *Catalog) Search(query []string, limit int, includeHidden bool) []File {
	if len(query) == 0 {
		return nil
	}

	// Intersect posting lists, smallest first.
	postings := make([][]int32, 0, len(query))
	for _, tok := range query {
		p, ok := c.tokens[strings.ToLower(tok)]
		if !ok {
			return nil
		}
		postings = append(postings, p)
	}
	sort.Slice(postings, func(i, j int) bool { return len(postings[i]) < len(postings[j]) })

	result := postings[0]
	for _, p := range postings[1:] {
		result = intersect(result, p)
		if len(result) == 0 {
			return nil
		}
	}

	out := make([]File, 0, min(limit, len(result)))
	for _, i := range result {
		f := c.files[i]
		if f.Hidden && !includeHidden {
			continue
		}
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// intersect merges two ascending posting lists.
func intersect(a, b []int32) []int32 {
	out := make([]int32, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Files returns the raw file slice for persistence. Callers must not
// mutate it.
func (c *Catalog) Files() []File {
	return c.files
}
