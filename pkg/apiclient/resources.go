package apiclient

import (
	"fmt"
	"net/url"
	"time"
)

// Session is the overlay session state.
type Session struct {
	State     string `json:"state"`
	Server    string `json:"server"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
}

// GetSession returns the overlay session state.
func (c *Client) GetSession() (*Session, error) {
	return getResource[Session](c, "/api/v1/session")
}

// UpdateSession applies a session action: connect, disconnect or reconnect.
func (c *Client) UpdateSession(action string) (*Session, error) {
	req := struct {
		Action string `json:"action"`
	}{Action: action}

	var resp Session
	if err := c.put("/api/v1/session", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transfer is one entry in the transfer engine.
type Transfer struct {
	ID               string     `json:"id"`
	Direction        string     `json:"direction"`
	Username         string     `json:"username"`
	RemoteFilename   string     `json:"remote_filename"`
	LocalFilename    string     `json:"local_filename,omitempty"`
	Size             int64      `json:"size"`
	StartOffset      int64      `json:"start_offset"`
	BytesTransferred int64      `json:"bytes_transferred"`
	AverageSpeed     float64    `json:"average_speed"`
	State            string     `json:"state"`
	EnqueuedAt       time.Time  `json:"enqueued_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Failure          *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"failure,omitempty"`
}

// ListTransfers returns all transfers in the given direction, "downloads"
// or "uploads".
func (c *Client) ListTransfers(direction string) ([]Transfer, error) {
	return listResources[Transfer](c, "/api/v1/transfers/"+url.PathEscape(direction))
}

// GetTransfer returns a single transfer.
func (c *Client) GetTransfer(direction, username, id string) (*Transfer, error) {
	return getResource[Transfer](c, transferPath(direction, username, id))
}

// EnqueueDownload requests a download from a peer.
func (c *Client) EnqueueDownload(username, filename string, size int64) (*Transfer, error) {
	req := struct {
		Username string `json:"username"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	}{Username: username, Filename: filename, Size: size}

	var resp Transfer
	if err := c.post("/api/v1/transfers/downloads", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelTransfer aborts a transfer; with remove it is also dropped from
// history.
func (c *Client) CancelTransfer(direction, username, id string, remove bool) error {
	path := transferPath(direction, username, id)
	if remove {
		path += "?remove=true"
	}
	return c.delete(path, nil)
}

// TransferPosition returns the remote queue position of a queued download.
func (c *Client) TransferPosition(direction, username, id string) (int, error) {
	var resp struct {
		Position int `json:"position"`
	}
	if err := c.get(transferPath(direction, username, id)+"/position", &resp); err != nil {
		return 0, err
	}
	return resp.Position, nil
}

func transferPath(direction, username, id string) string {
	return fmt.Sprintf("/api/v1/transfers/%s/%s/%s",
		url.PathEscape(direction), url.PathEscape(username), url.PathEscape(id))
}

// Shares summarizes the shared-file index.
type Shares struct {
	Directories  int     `json:"directories"`
	Files        int     `json:"files"`
	Filling      bool    `json:"filling"`
	FillProgress float64 `json:"fill_progress"`
	Faulted      bool    `json:"faulted"`
}

// GetShares returns share counts and scan progress.
func (c *Client) GetShares() (*Shares, error) {
	return getResource[Shares](c, "/api/v1/shares")
}

// RescanShares starts a background rescan of the shared directories.
func (c *Client) RescanShares() error {
	return c.put("/api/v1/shares", nil, nil)
}

// SharedDirectory is one directory in the share catalog.
type SharedDirectory struct {
	Path   string `json:"path"`
	Agent  string `json:"agent,omitempty"`
	Hidden bool   `json:"hidden"`
	Files  []struct {
		Name      string `json:"name"`
		Size      int64  `json:"size"`
		Extension string `json:"extension,omitempty"`
	} `json:"files"`
}

// ListShareContents returns the full share catalog.
func (c *Client) ListShareContents() ([]SharedDirectory, error) {
	return listResources[SharedDirectory](c, "/api/v1/shares/contents")
}

// GetShareDirectory returns a single shared directory.
func (c *Client) GetShareDirectory(path string) (*SharedDirectory, error) {
	return getResource[SharedDirectory](c, "/api/v1/shares/contents?path="+url.QueryEscape(path))
}

// Agent is one connected share agent.
type Agent struct {
	Name         string    `json:"name"`
	ConnectionID string    `json:"connection_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// ListAgents returns the connected agents.
func (c *Client) ListAgents() ([]Agent, error) {
	return listResources[Agent](c, "/api/v1/agents")
}

// Search summarizes one overlay search.
type Search struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	ResponseCount int        `json:"response_count"`
	FileCount     int        `json:"file_count"`
}

// SearchDetail is a search with its collected peer responses.
type SearchDetail struct {
	Search
	Responses []SearchResponse `json:"responses"`
}

// SearchResponse is one peer's answer to a search.
type SearchResponse struct {
	Username    string       `json:"username"`
	HasFreeSlot bool         `json:"has_free_slot"`
	QueueLength int          `json:"queue_length"`
	UploadSpeed int          `json:"upload_speed"`
	ReceivedAt  time.Time    `json:"received_at"`
	Files       []SearchFile `json:"files"`
}

// SearchFile is one file offered in a search response.
type SearchFile struct {
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	Extension       string `json:"extension,omitempty"`
	BitRate         int    `json:"bit_rate,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	DurationSecs    int    `json:"duration_secs,omitempty"`
	VariableBitRate bool   `json:"variable_bit_rate,omitempty"`
}

// BeginSearchRequest describes a new overlay search.
type BeginSearchRequest struct {
	Text     string `json:"text"`
	Scope    string `json:"scope,omitempty"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// BeginSearch starts an overlay search.
func (c *Client) BeginSearch(req BeginSearchRequest) (*Search, error) {
	var resp Search
	if err := c.post("/api/v1/searches", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSearches returns recent searches, newest first.
func (c *Client) ListSearches(limit int) ([]Search, error) {
	path := "/api/v1/searches"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	return listResources[Search](c, path)
}

// GetSearch returns a search with its responses.
func (c *Client) GetSearch(id string) (*SearchDetail, error) {
	return getResource[SearchDetail](c, "/api/v1/searches/"+url.PathEscape(id))
}

// CancelSearch stops a running search.
func (c *Client) CancelSearch(id string) error {
	return c.post("/api/v1/searches/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// DeleteSearch removes a settled search from history.
func (c *Client) DeleteSearch(id string) error {
	return c.delete("/api/v1/searches/"+url.PathEscape(id), nil)
}

// State is the full daemon runtime snapshot.
type State struct {
	Version struct {
		Version string `json:"version"`
		Commit  string `json:"commit,omitempty"`
	} `json:"version"`
	Server Session `json:"server"`
	Scan   struct {
		Filling      bool    `json:"filling"`
		FillProgress float64 `json:"fill_progress"`
		Directories  int     `json:"directories"`
		Files        int     `json:"files"`
		Faulted      bool    `json:"faulted"`
	} `json:"scan"`
	Pending struct {
		Restart     bool `json:"restart"`
		Reconnect   bool `json:"reconnect"`
		ShareRescan bool `json:"share_rescan"`
	} `json:"pending"`
}

// GetState returns the full runtime snapshot.
func (c *Client) GetState() (*State, error) {
	return getResource[State](c, "/api/v1/state")
}
