// Package overlay defines the abstraction over the peer-to-peer protocol
// library the daemon is built against.
//
// The daemon never speaks the overlay wire format itself: connecting,
// logging in, searching, and moving file bytes are all delegated to an
// implementation of Client. The package also defines the inbound hook
// surface (Resolvers) through which the library asks the daemon to answer
// browse, search, and enqueue requests arriving from peers.
package overlay

import (
	"context"
	"io"
	"time"
)

// Scope selects who a search is addressed to.
type Scope int

const (
	// ScopeNetwork searches the whole overlay.
	ScopeNetwork Scope = iota

	// ScopeWishlist runs a background wishlist search.
	ScopeWishlist

	// ScopeRoom searches a single chat room.
	ScopeRoom

	// ScopeUser searches a single peer.
	ScopeUser
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeNetwork:
		return "network"
	case ScopeWishlist:
		return "wishlist"
	case ScopeRoom:
		return "room"
	case ScopeUser:
		return "user"
	default:
		return "unknown"
	}
}

// File is a single advertised file in overlay wire form. Filenames use the
// overlay's backslash separator regardless of host platform.
type File struct {
	Name      string
	Size      int64
	Extension string

	// Audio attributes, zero when unknown.
	BitRate         int
	SampleRate      int
	DurationSecs    int
	VariableBitRate bool
}

// Directory is one directory of an advertised share tree.
type Directory struct {
	Name  string
	Files []File
}

// UserInfo answers a peer's user-info request.
type UserInfo struct {
	Description string
	Picture     []byte
	UploadSlots int
	QueueLength int
	HasFreeSlot bool
}

// UserStatus describes a peer's presence and share counts as reported by
// the coordination server.
type UserStatus struct {
	Username     string
	Online       bool
	Files        int
	Directories  int
	AverageSpeed int
}

// SearchRequest is an incoming search from a peer or the distributed mesh.
type SearchRequest struct {
	Username string
	Token    uint32
	Query    string
}

// SearchResponse is one peer's answer to a search the daemon issued.
type SearchResponse struct {
	Username    string
	Token       uint32
	Files       []File
	HasFreeSlot bool
	QueueLength int
	UploadSpeed int
}

// PrivateMessage is a direct message from a peer.
type PrivateMessage struct {
	ID        int
	Username  string
	Message   string
	Timestamp time.Time
}

// RoomMessage is a message in a joined chat room.
type RoomMessage struct {
	Room     string
	Username string
	Message  string
}

// DisconnectReason classifies why the server connection ended.
type DisconnectReason int

const (
	// DisconnectNetwork is an unexpected transport failure.
	DisconnectNetwork DisconnectReason = iota

	// DisconnectRequested is a deliberate local disconnect.
	DisconnectRequested

	// DisconnectDisplaced means another login for the same account
	// replaced this session.
	DisconnectDisplaced
)

// String returns the reason name.
func (r DisconnectReason) String() string {
	switch r {
	case DisconnectRequested:
		return "requested"
	case DisconnectDisplaced:
		return "displaced"
	default:
		return "network"
	}
}

// RateGovernor grants permission to move n bytes. Implementations block
// until the configured rate allows the transfer to proceed.
type RateGovernor interface {
	WaitN(ctx context.Context, n int) error
}

// TransferOptions tunes a single upload or download.
type TransferOptions struct {
	// StartOffset resumes a partial transfer.
	StartOffset int64

	// Governor throttles the byte stream. Nil means unthrottled.
	Governor RateGovernor

	// OnStarted fires once when the peer connection is established and
	// byte movement is about to begin.
	OnStarted func()

	// OnProgress fires as bytes move; n is the cumulative count for
	// this transfer, including the start offset.
	OnProgress func(n int64)
}

// SearchOptions tunes an outgoing search.
type SearchOptions struct {
	// Timeout ends the search when no responses arrive for this long.
	Timeout time.Duration

	// Room and Username narrow ScopeRoom and ScopeUser searches.
	Room     string
	Username string
}

// OptionsPatch carries the reconfigurable subset of client options.
// Nil fields are left unchanged.
type OptionsPatch struct {
	ListenPort            *int
	DistributedEnabled    *bool
	DistributedChildLimit *int
	ConnectTimeout        *time.Duration
}

// Resolvers is the inbound hook surface. The daemon installs these before
// connecting; the library invokes them to answer peer requests. Hooks must
// be safe for concurrent use.
type Resolvers struct {
	// BrowseShares answers a peer's browse request with the full share tree.
	BrowseShares func(ctx context.Context, username string) ([]Directory, error)

	// DirectoryContents answers a single directory listing request.
	DirectoryContents func(ctx context.Context, username, directory string) (Directory, error)

	// ResolveUserInfo answers a peer's user-info request.
	ResolveUserInfo func(ctx context.Context, username string) (UserInfo, error)

	// EnqueueDownload admits a peer's request to download a shared file,
	// which this daemon serves as an upload. Returning an error refuses
	// the request; the library relays the refusal to the peer.
	EnqueueDownload func(ctx context.Context, username, filename string) error

	// SearchResponse answers an incoming search request. Returning no
	// files suppresses the response.
	SearchResponse func(ctx context.Context, req SearchRequest) ([]File, error)

	// OnSearchResponse delivers one peer's answer to a search this
	// daemon issued.
	OnSearchResponse func(resp SearchResponse)

	// OnPrivateMessage delivers a direct message.
	OnPrivateMessage func(msg PrivateMessage)

	// OnRoomMessage delivers a room chat message.
	OnRoomMessage func(msg RoomMessage)

	// OnUserStatus delivers peer presence and share-count updates.
	OnUserStatus func(status UserStatus)

	// OnDisconnected reports loss of the server connection. err carries
	// the transport failure for DisconnectNetwork and is nil otherwise.
	OnDisconnected func(reason DisconnectReason, err error)
}

// Client is the peer-protocol surface the daemon consumes.
//
// Implementations classify transfer failures through the shared error
// taxonomy: a deadline maps to Timeout, a peer refusal to PeerRejected,
// protocol violations to RemoteProtocol, and anything else to Internal.
// The transfer engine relies on that classification when recording
// terminal states.
type Client interface {
	// Connect establishes the server connection.
	Connect(ctx context.Context, address string) error

	// Login authenticates the connected session.
	Login(ctx context.Context, username, password string) error

	// Disconnect tears the session down. The reason is relayed to
	// OnDisconnected as DisconnectRequested.
	Disconnect(reason string) error

	// SetResolvers installs the inbound hooks. Must be called before
	// Connect.
	SetResolvers(r Resolvers)

	// Search issues a search and returns when it completes or ctx ends.
	// Responses stream through Resolvers.OnSearchResponse.
	Search(ctx context.Context, query string, scope Scope, token uint32, opts SearchOptions) error

	// EnqueueDownload asks the peer to queue filename for upload to us.
	// The peer's refusal surfaces as a PeerRejected error.
	EnqueueDownload(ctx context.Context, peer, filename string) error

	// Download transfers filename from the peer into localPath and
	// returns the byte count. Blocks until the transfer finishes.
	Download(ctx context.Context, peer, filename, localPath string, opts TransferOptions) (int64, error)

	// Upload serves size bytes from stream to the peer. Blocks until the
	// transfer finishes.
	Upload(ctx context.Context, peer, filename string, size int64, stream io.Reader, opts TransferOptions) error

	// Browse fetches a peer's full share tree.
	Browse(ctx context.Context, peer string) ([]Directory, error)

	// PlaceInQueue asks the peer for our position in their upload queue.
	PlaceInQueue(ctx context.Context, peer, filename string) (int, error)

	// SendUploadSpeed reports the most recent average upload speed to
	// the coordination server.
	SendUploadSpeed(ctx context.Context, bytesPerSecond int) error

	// SetSharedCounts advertises the share catalog size.
	SetSharedCounts(ctx context.Context, directories, files int) error

	// JoinRoom joins a chat room.
	JoinRoom(ctx context.Context, room string) error

	// ReconfigureOptions applies the patch and reports whether the new
	// options require the session to reconnect to take effect.
	ReconfigureOptions(patch OptionsPatch) (reconnectRequired bool)
}
