package shares

import (
	"testing"

	"github.com/seekd/seekd/pkg/seekerr"
)

func TestParseRoot(t *testing.T) {
	cases := []struct {
		spec   string
		alias  string
		path   string
		hidden bool
		err    bool
	}{
		{spec: "/music/flac", alias: "flac", path: "/music/flac"},
		{spec: "[tapes]/mnt/archive/tapes", alias: "tapes", path: "/mnt/archive/tapes"},
		{spec: "![private]/home/op/inbox", alias: "private", path: "/home/op/inbox", hidden: true},
		{spec: "-/home/op/stash", alias: "stash", path: "/home/op/stash", hidden: true},
		{spec: "relative/path", err: true},
		{spec: "[broken/mnt/x", err: true},
		{spec: `[bad\alias]/mnt/x`, err: true},
		{spec: "", err: true},
	}

	for _, c := range cases {
		root, err := ParseRoot(c.spec)
		if c.err {
			if err == nil {
				t.Errorf("ParseRoot(%q) succeeded, want error", c.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRoot(%q): %v", c.spec, err)
			continue
		}
		if root.Alias != c.alias || root.Path != c.path || root.Hidden != c.hidden {
			t.Errorf("ParseRoot(%q) = %+v, want alias=%q path=%q hidden=%v",
				c.spec, root, c.alias, c.path, c.hidden)
		}
	}
}

func TestParseRootsRejectsDuplicates(t *testing.T) {
	_, err := ParseRoots([]string{"[music]/a", "[music]/b"})
	if !seekerr.Is(err, seekerr.KindInvalidArgument) {
		t.Errorf("duplicate alias: got %v", err)
	}

	_, err = ParseRoots([]string{"[a]/same/path", "[b]/same/path"})
	if !seekerr.Is(err, seekerr.KindInvalidArgument) {
		t.Errorf("duplicate path: got %v", err)
	}

	roots, err := ParseRoots([]string{"[a]/one", "![b]/two"})
	if err != nil {
		t.Fatalf("valid roots: %v", err)
	}
	if len(roots) != 2 || !roots[1].Hidden {
		t.Errorf("roots = %+v", roots)
	}
}

func TestOverlayPathConversion(t *testing.T) {
	root := Root{Alias: "music", Path: "/srv/music"}

	overlay := root.toOverlay("artist/album/track.mp3")
	if overlay != `music\artist\album\track.mp3` {
		t.Errorf("toOverlay = %q", overlay)
	}

	local, ok := root.fromOverlay(overlay)
	if !ok || local != "/srv/music/artist/album/track.mp3" {
		t.Errorf("fromOverlay = %q, %v", local, ok)
	}

	if _, ok := root.fromOverlay(`other\file.mp3`); ok {
		t.Error("fromOverlay accepted a foreign alias")
	}
}
