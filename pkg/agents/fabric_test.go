package agents

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seekd/seekd/pkg/agents/wire"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
)

const testSecret = "fabric-test-secret-key"

type fakeCatalog struct {
	mu      sync.Mutex
	files   map[string][]shares.File
	removed []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{files: make(map[string][]shares.File)}
}

func (c *fakeCatalog) SetAgentCatalog(agent string, files []shares.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[agent] = files
}

func (c *fakeCatalog) RemoveAgentCatalog(agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, agent)
	c.removed = append(c.removed, agent)
}

func (c *fakeCatalog) get(agent string) ([]shares.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	files, ok := c.files[agent]
	return files, ok
}

func (c *fakeCatalog) wasRemoved(agent string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.removed {
		if name == agent {
			return true
		}
	}
	return false
}

func startFabric(t *testing.T, mutate func(*config.AgentsConfig)) (*Fabric, *fakeCatalog) {
	t.Helper()

	cfg := config.AgentsConfig{
		Listen:         "127.0.0.1:0",
		Secret:         testSecret,
		PingInterval:   time.Minute,
		RequestTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	catalog := newFakeCatalog()
	bus := events.NewBus(64)
	f := NewFabric(Options{Config: cfg, Shares: catalog, Bus: bus})

	errs := make(chan error, 1)
	go func() { errs <- f.Serve(context.Background()) }()
	t.Cleanup(func() {
		f.Stop()
		bus.Close()
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("serve did not return after stop")
		}
	})

	waitFor(t, "listener to bind", func() bool { return f.Addr() != "" })
	return f, catalog
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testAgent struct {
	t    *testing.T
	conn net.Conn
}

// dialAgent connects and completes the challenge handshake.
func dialAgent(t *testing.T, addr, name, secret string) *testAgent {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial fabric: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	a := &testAgent{t: t, conn: conn}

	a.write(wire.TypeHello, wire.Hello{Name: name})
	var challenge wire.Challenge
	a.expect(wire.TypeChallenge, &challenge)
	a.write(wire.TypeLogin, wire.Login{Digest: wire.Sign(challenge.Token, secret)})
	var result wire.LoginResult
	a.expect(wire.TypeLoginResult, &result)
	if !result.OK {
		t.Fatalf("login refused: %s", result.Message)
	}
	return a
}

func (a *testAgent) write(tp wire.Type, payload any) {
	a.t.Helper()
	if err := wire.WriteMessage(a.conn, tp, payload); err != nil {
		a.t.Fatalf("write %s: %v", tp, err)
	}
}

func (a *testAgent) read() (wire.Type, []byte) {
	a.t.Helper()
	if err := a.conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		a.t.Fatalf("set deadline: %v", err)
	}
	tp, payload, err := wire.ReadMessage(a.conn)
	if err != nil {
		a.t.Fatalf("read frame: %v", err)
	}
	return tp, payload
}

func (a *testAgent) expect(want wire.Type, v any) {
	a.t.Helper()
	tp, payload := a.read()
	if tp != want {
		a.t.Fatalf("got frame %s, want %s", tp, want)
	}
	if v != nil {
		if err := wire.Decode(payload, v); err != nil {
			a.t.Fatalf("decode %s: %v", want, err)
		}
	}
}

func signedPost(t *testing.T, url, token string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(SignatureHeader, hex.EncodeToString(wire.Sign([]byte(token), testSecret)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func newDataServer(t *testing.T, f *Fabric) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	f.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandshakeRegistersAgent(t *testing.T) {
	f, _ := startFabric(t, nil)
	dialAgent(t, f.Addr(), "shed", testSecret)

	waitFor(t, "agent registration", func() bool {
		agents := f.Agents()
		return len(agents) == 1 && agents[0].Name == "shed"
	})
}

func TestHandshakeRejectsBadSecret(t *testing.T) {
	f, _ := startFabric(t, nil)

	conn, err := net.DialTimeout("tcp", f.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial fabric: %v", err)
	}
	defer func() { _ = conn.Close() }()
	a := &testAgent{t: t, conn: conn}

	a.write(wire.TypeHello, wire.Hello{Name: "impostor"})
	var challenge wire.Challenge
	a.expect(wire.TypeChallenge, &challenge)
	a.write(wire.TypeLogin, wire.Login{Digest: wire.Sign(challenge.Token, "wrong-secret")})

	var result wire.LoginResult
	a.expect(wire.TypeLoginResult, &result)
	if result.OK {
		t.Fatalf("login accepted with a bad secret")
	}
	if len(f.Agents()) != 0 {
		t.Fatalf("agent registered despite refused login: %v", f.Agents())
	}
}

func TestGetFileInfoRoundTrip(t *testing.T) {
	f, _ := startFabric(t, nil)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	go func() {
		var req wire.RequestFileInfo
		a.expect(wire.TypeRequestFileInfo, &req)
		if req.Filename != "Music\\album\\track.flac" {
			a.t.Errorf("requested filename = %q", req.Filename)
		}
		a.write(wire.TypeReturnFileInfo, wire.ReturnFileInfo{ID: req.ID, Exists: true, Size: 9000})
	}()

	info, err := f.GetFileInfo(context.Background(), "shed", "Music\\album\\track.flac")
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if !info.Exists || info.Size != 9000 {
		t.Fatalf("info = %+v, want exists with size 9000", info)
	}
}

func TestGetFileInfoFailsOnDisconnect(t *testing.T) {
	f, _ := startFabric(t, nil)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	go func() {
		var req wire.RequestFileInfo
		a.expect(wire.TypeRequestFileInfo, &req)
		_ = a.conn.Close()
	}()

	_, err := f.GetFileInfo(context.Background(), "shed", "anything")
	if !seekerr.Is(err, seekerr.KindAgentDisconnected) {
		t.Fatalf("GetFileInfo error = %v, want AgentDisconnected", err)
	}
}

func TestGetFileInfoUnknownAgent(t *testing.T) {
	f, _ := startFabric(t, nil)

	_, err := f.GetFileInfo(context.Background(), "nobody", "anything")
	if !seekerr.Is(err, seekerr.KindAgentDisconnected) {
		t.Fatalf("error = %v, want AgentDisconnected", err)
	}
}

func TestGetFileDeliversStreamAndSpendsToken(t *testing.T) {
	f, _ := startFabric(t, nil)
	srv := newDataServer(t, f)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	tokens := make(chan string, 1)
	statuses := make(chan int, 1)
	go func() {
		var req wire.RequestFileUpload
		a.expect(wire.TypeRequestFileUpload, &req)
		tokens <- req.Token
		resp := signedPost(a.t, srv.URL+"/agents/files/"+req.Token, req.Token, strings.NewReader("file-bytes"))
		statuses <- resp.StatusCode
	}()

	stream, done, err := f.GetFile(context.Background(), "shed", "Music\\song.flac", 10)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "file-bytes" {
		t.Fatalf("stream = %q, want %q", data, "file-bytes")
	}
	done(nil)

	if status := <-statuses; status != http.StatusNoContent {
		t.Fatalf("agent post status = %d, want 204", status)
	}

	// The token was spent on the first redemption.
	token := <-tokens
	resp := signedPost(t, srv.URL+"/agents/files/"+token, token, strings.NewReader("again"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed token status = %d, want 401", resp.StatusCode)
	}
}

func TestGetFileTimeoutWithdrawsToken(t *testing.T) {
	f, _ := startFabric(t, func(cfg *config.AgentsConfig) {
		cfg.RequestTimeout = 150 * time.Millisecond
	})
	srv := newDataServer(t, f)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	tokens := make(chan string, 1)
	go func() {
		var req wire.RequestFileUpload
		a.expect(wire.TypeRequestFileUpload, &req)
		tokens <- req.Token
		// Never post; the controller side must give up on its own.
	}()

	_, _, err := f.GetFile(context.Background(), "shed", "Music\\slow.flac", 10)
	if !seekerr.Is(err, seekerr.KindTimeout) {
		t.Fatalf("GetFile error = %v, want Timeout", err)
	}

	token := <-tokens
	resp := signedPost(t, srv.URL+"/agents/files/"+token, token, strings.NewReader("too late"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("late post status = %d, want 401", resp.StatusCode)
	}
}

func TestGetFileFailsOnUploadFailureNotice(t *testing.T) {
	f, _ := startFabric(t, nil)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	go func() {
		var req wire.RequestFileUpload
		a.expect(wire.TypeRequestFileUpload, &req)
		a.write(wire.TypeNotifyUploadFailed, wire.NotifyUploadFailed{Token: req.Token, Message: "disk error"})
	}()

	_, _, err := f.GetFile(context.Background(), "shed", "Music\\gone.flac", 10)
	if err == nil {
		t.Fatalf("GetFile succeeded despite failure notice")
	}
	if !strings.Contains(err.Error(), "disk error") {
		t.Fatalf("error %q does not carry the agent's reason", err)
	}
}

func TestGetFileBadSignatureSpendsTokenAndFailsFetch(t *testing.T) {
	f, _ := startFabric(t, nil)
	srv := newDataServer(t, f)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	statuses := make(chan int, 2)
	go func() {
		var req wire.RequestFileUpload
		a.expect(wire.TypeRequestFileUpload, &req)

		bad, err := http.NewRequest(http.MethodPost, srv.URL+"/agents/files/"+req.Token, strings.NewReader("x"))
		if err != nil {
			a.t.Errorf("build request: %v", err)
			return
		}
		bad.Header.Set(SignatureHeader, "deadbeef")
		resp, err := http.DefaultClient.Do(bad)
		if err != nil {
			a.t.Errorf("post: %v", err)
			return
		}
		_ = resp.Body.Close()
		statuses <- resp.StatusCode

		// Correctly signed retry must find the token already spent.
		resp2 := signedPost(a.t, srv.URL+"/agents/files/"+req.Token, req.Token, strings.NewReader("x"))
		statuses <- resp2.StatusCode
	}()

	_, _, err := f.GetFile(context.Background(), "shed", "Music\\song.flac", 10)
	if !seekerr.Is(err, seekerr.KindUnauthorized) {
		t.Fatalf("GetFile error = %v, want Unauthorized", err)
	}
	if status := <-statuses; status != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d, want 401", status)
	}
	if status := <-statuses; status != http.StatusUnauthorized {
		t.Fatalf("spent token status = %d, want 401", status)
	}
}

func TestShareCatalogUpload(t *testing.T) {
	f, catalog := startFabric(t, nil)
	srv := newDataServer(t, f)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	files := []shares.File{
		{Path: "Music\\one.flac", Name: "one.flac", Size: 100},
		{Path: "Music\\two.flac", Name: "two.flac", Size: 200},
	}

	a.write(wire.TypeBeginShareUpload, wire.BeginShareUpload{Files: int32(len(files))})
	var grant wire.ShareUploadGranted
	a.expect(wire.TypeShareUploadGranted, &grant)

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(files); err != nil {
		t.Fatalf("encode catalog: %v", err)
	}
	resp := signedPost(t, srv.URL+"/agents/shares/"+grant.Token, grant.Token, &body)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("catalog post status = %d, want 204", resp.StatusCode)
	}

	got, ok := catalog.get("shed")
	if !ok || len(got) != 2 {
		t.Fatalf("catalog for shed = %v, %v", got, ok)
	}
	if got[0].Path != "Music\\one.flac" {
		t.Fatalf("first file = %+v", got[0])
	}

	resp = signedPost(t, srv.URL+"/agents/shares/"+grant.Token, grant.Token, bytes.NewReader(nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed catalog token status = %d, want 401", resp.StatusCode)
	}
}

func TestShareTokenRefusedOnFileEndpoint(t *testing.T) {
	f, _ := startFabric(t, nil)
	srv := newDataServer(t, f)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	a.write(wire.TypeBeginShareUpload, wire.BeginShareUpload{Files: 1})
	var grant wire.ShareUploadGranted
	a.expect(wire.TypeShareUploadGranted, &grant)

	resp := signedPost(t, srv.URL+"/agents/files/"+grant.Token, grant.Token, strings.NewReader("x"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cross-endpoint status = %d, want 401", resp.StatusCode)
	}
}

func TestDisconnectDeregistersAndDropsCatalog(t *testing.T) {
	f, catalog := startFabric(t, nil)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	_ = a.conn.Close()

	waitFor(t, "agent deregistration", func() bool { return len(f.Agents()) == 0 })
	waitFor(t, "catalog removal", func() bool { return catalog.wasRemoved("shed") })
}

func TestReconnectReplacesPriorConnection(t *testing.T) {
	f, _ := startFabric(t, nil)
	first := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	second := dialAgent(t, f.Addr(), "shed", testSecret)

	// The stale connection is closed by the fabric.
	waitFor(t, "first connection to close", func() bool {
		_ = first.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, _, err := wire.ReadMessage(first.conn)
		return err != nil && !isTimeout(err)
	})

	if agents := f.Agents(); len(agents) != 1 || agents[0].Name != "shed" {
		t.Fatalf("agents = %v, want exactly shed", agents)
	}

	// The replacement serves requests.
	go func() {
		var req wire.RequestFileInfo
		second.expect(wire.TypeRequestFileInfo, &req)
		second.write(wire.TypeReturnFileInfo, wire.ReturnFileInfo{ID: req.ID, Exists: true, Size: 1})
	}()
	info, err := f.GetFileInfo(context.Background(), "shed", "x")
	if err != nil || !info.Exists {
		t.Fatalf("GetFileInfo after replacement = %+v, %v", info, err)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func TestPingAnswersPong(t *testing.T) {
	f, _ := startFabric(t, nil)
	a := dialAgent(t, f.Addr(), "shed", testSecret)
	waitFor(t, "agent registration", func() bool { return len(f.Agents()) == 1 })

	a.write(wire.TypePing, wire.Ping{})
	a.expect(wire.TypePong, nil)
}
