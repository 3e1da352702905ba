//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seekd/seekd/pkg/api/auth"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/daemon"
	"github.com/seekd/seekd/pkg/overlay"
)

const (
	operatorUser     = "operator"
	operatorPassword = "correct horse battery"
)

// stubOverlay answers every overlay call with success so the daemon can run
// full cycles without a coordination server.
type stubOverlay struct {
	mu        sync.Mutex
	resolvers overlay.Resolvers
	searches  []string
}

func (s *stubOverlay) Connect(context.Context, string) error       { return nil }
func (s *stubOverlay) Login(context.Context, string, string) error { return nil }
func (s *stubOverlay) Disconnect(string) error                     { return nil }

func (s *stubOverlay) SetResolvers(r overlay.Resolvers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers = r
}

func (s *stubOverlay) Search(_ context.Context, query string, _ overlay.Scope, _ uint32, _ overlay.SearchOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, query)
	return nil
}

func (s *stubOverlay) searchQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.searches...)
}

func (s *stubOverlay) EnqueueDownload(context.Context, string, string) error { return nil }

func (s *stubOverlay) Download(_ context.Context, _, _, localPath string, _ overlay.TransferOptions) (int64, error) {
	return 0, os.WriteFile(localPath, nil, 0o644)
}

func (s *stubOverlay) Upload(context.Context, string, string, int64, io.Reader, overlay.TransferOptions) error {
	return nil
}
func (s *stubOverlay) Browse(context.Context, string) ([]overlay.Directory, error) { return nil, nil }
func (s *stubOverlay) PlaceInQueue(context.Context, string, string) (int, error)   { return 1, nil }
func (s *stubOverlay) SendUploadSpeed(context.Context, int) error                  { return nil }
func (s *stubOverlay) SetSharedCounts(context.Context, int, int) error             { return nil }
func (s *stubOverlay) JoinRoom(context.Context, string) error                      { return nil }
func (s *stubOverlay) ReconfigureOptions(overlay.OptionsPatch) bool                { return false }

// freePort reserves an ephemeral TCP port and releases it for the daemon.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// writeSharedFiles seeds a share root with a small directory tree.
func writeSharedFiles(t *testing.T, root string) {
	t.Helper()
	album := filepath.Join(root, "album")
	require.NoError(t, os.MkdirAll(album, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(album, "01 - first.flac"), make([]byte, 512), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(album, "02 - second.flac"), make([]byte, 1024), 0o644))
}

// TestDaemon is one running daemon under test.
type TestDaemon struct {
	BaseURL string
	Overlay *stubOverlay
	Config  *config.Config
}

// startDaemon boots a daemon on an ephemeral port, waits for the API to
// serve, and tears it down with the test.
func startDaemon(t *testing.T) *TestDaemon {
	t.Helper()

	dir := t.TempDir()
	shareRoot := filepath.Join(dir, "shared")
	writeSharedFiles(t, shareRoot)

	hash, err := auth.HashPassword(operatorPassword)
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	cfg.DataDir = dir
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Directory = filepath.Join(dir, "db")
	cfg.Shares.Storage = "memory"
	cfg.Shares.Roots = []string{shareRoot}
	cfg.Transfers.Downloads.Directory = filepath.Join(dir, "downloads")
	cfg.Transfers.Downloads.IncompleteDirectory = filepath.Join(dir, "incomplete")
	cfg.API.Port = freePort(t)
	cfg.API.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.API.Users = []config.APIUserConfig{{Username: operatorUser, PasswordHash: hash}}
	cfg.Overlay.Address = "overlay.invalid:2242"
	cfg.Overlay.Username = "tester"
	cfg.Overlay.Password = "hunter22"

	client := &stubOverlay{}
	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Client:  client,
		Version: "e2e",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(30 * time.Second):
			t.Error("daemon did not shut down in time")
		}
	})

	td := &TestDaemon{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.API.Port),
		Overlay: client,
		Config:  cfg,
	}
	td.waitHealthy(t)
	return td
}

// waitHealthy polls the liveness probe until the API server answers.
func (td *TestDaemon) waitHealthy(t *testing.T) {
	t.Helper()
	httpClient := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := httpClient.Get(td.BaseURL + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 15*time.Second, 50*time.Millisecond, "API server never became healthy")
}

// Login returns an authenticated API client for the operator account.
func (td *TestDaemon) Login(t *testing.T) *apiclient.Client {
	t.Helper()
	client := apiclient.New(td.BaseURL)
	tokens, err := client.Login(operatorUser, operatorPassword)
	require.NoError(t, err)
	client.SetToken(tokens.AccessToken)
	return client
}
