package seekerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindNotFound, "NotFound"},
		{KindAlreadyExists, "AlreadyExists"},
		{KindInvalidArgument, "InvalidArgument"},
		{KindPreconditionFailed, "PreconditionFailed"},
		{KindUnauthorized, "Unauthorized"},
		{KindTimeout, "Timeout"},
		{KindCancelled, "Cancelled"},
		{KindPeerRejected, "PeerRejected"},
		{KindRemoteProtocol, "RemoteProtocol"},
		{KindLocalIO, "LocalIO"},
		{KindAgentDisconnected, "AgentDisconnected"},
		{KindBlacklisted, "Blacklisted"},
		{KindConfiguration, "Configuration"},
		{KindInternal, "Internal"},
		{Kind(99), "Unknown(99)"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("disk full")

	e := Wrap(KindLocalIO, "writing chunk", cause)
	if got := e.Error(); got != "LocalIO: writing chunk: disk full" {
		t.Errorf("Error() = %q", got)
	}

	e2 := New(KindNotFound, "no such transfer")
	if got := e2.Error(); got != "NotFound: no such transfer" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapNilCause(t *testing.T) {
	if e := Wrap(KindLocalIO, "nothing", nil); e != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", e)
	}
}

func TestKindOfUnwrapsChains(t *testing.T) {
	inner := New(KindTimeout, "waiter expired")
	outer := fmt.Errorf("fetching file: %w", inner)

	if got := KindOf(outer); got != KindTimeout {
		t.Errorf("KindOf = %v, want KindTimeout", got)
	}
	if !IsTimeout(outer) {
		t.Error("IsTimeout = false, want true")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want KindInternal", got)
	}
	if got := KindOf(nil); got != 0 {
		t.Errorf("KindOf(nil) = %v, want 0", got)
	}
}

func TestCausePreservedVerbatim(t *testing.T) {
	cause := errors.New("open /srv/music/x.mp3: permission denied")
	e := Wrap(KindLocalIO, "serving upload", cause)

	if !errors.Is(e, cause) {
		t.Error("errors.Is(e, cause) = false, want true")
	}
}
