package agents

import (
	"encoding/gob"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/agents/wire"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
)

// SignatureHeader carries the hex HMAC digest of the redeemed token.
const SignatureHeader = "X-Seekd-Signature"

// Routes mounts the agent data-channel endpoints. Agents redeem one-shot
// tokens here; the control channel never carries file bytes.
func (f *Fabric) Routes(r chi.Router) {
	r.Post("/agents/shares/{token}", f.handleShareCatalog)
	r.Post("/agents/files/{token}", f.handleFileUpload)
}

// redeemRequest consumes the token named in the URL and verifies the
// request signature. The token is spent even when verification fails.
func (f *Fabric) redeemRequest(w http.ResponseWriter, r *http.Request, kind ticketKind) (*ticket, bool) {
	token := chi.URLParam(r, "token")

	tk, ok := f.tickets.redeem(token)
	if !ok {
		http.Error(w, "unknown or expired token", http.StatusUnauthorized)
		return nil, false
	}
	if tk.kind != kind {
		f.refuseRedeemed(tk, "token presented on the wrong endpoint")
		http.Error(w, "token not valid for this endpoint", http.StatusUnauthorized)
		return nil, false
	}

	digest, err := hex.DecodeString(r.Header.Get(SignatureHeader))
	if err != nil || !wire.Verify([]byte(tk.token), digest, f.cfg.Secret) {
		logger.Warn("agent upload with bad signature",
			logger.Agent(tk.agent), logger.RemoteAddr(r.RemoteAddr))
		f.refuseRedeemed(tk, "redeemed with a bad signature")
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return nil, false
	}
	return tk, true
}

// refuseRedeemed resolves a spent ticket's stream promise with an error so
// a transfer waiting on it fails instead of running out its timeout.
func (f *Fabric) refuseRedeemed(tk *ticket, reason string) {
	select {
	case tk.stream <- streamResult{err: seekerr.Newf(seekerr.KindUnauthorized, "upload token %s", reason)}:
	default:
	}
}

// handleShareCatalog replaces the posting agent's slice of the shared-file
// index with the catalog in the request body.
func (f *Fabric) handleShareCatalog(w http.ResponseWriter, r *http.Request) {
	tk, ok := f.redeemRequest(w, r, ticketShareUpload)
	if !ok {
		return
	}

	var files []shares.File
	if err := gob.NewDecoder(r.Body).Decode(&files); err != nil {
		logger.Warn("bad share catalog upload", logger.Agent(tk.agent), logger.Err(err))
		http.Error(w, "malformed catalog", http.StatusBadRequest)
		return
	}

	f.shares.SetAgentCatalog(tk.agent, files)
	logger.Info("agent catalog replaced",
		logger.Agent(tk.agent), logger.Count(len(files)))
	w.WriteHeader(http.StatusNoContent)
}

// handleFileUpload hands the request body to the transfer waiting on this
// token and holds the connection open until that transfer settles, so the
// agent learns whether its upload was fully consumed.
func (f *Fabric) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	tk, ok := f.redeemRequest(w, r, ticketFileUpload)
	if !ok {
		return
	}

	select {
	case tk.stream <- streamResult{body: r.Body}:
	default:
		http.Error(w, "stream already delivered", http.StatusConflict)
		return
	}

	select {
	case err := <-tk.completion:
		if err != nil {
			logger.Warn("agent upload consumed with error",
				logger.Agent(tk.agent), logger.Path(tk.filename), logger.Err(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		// Agent gave up or the daemon is shutting down; the reader will
		// see the body error on its side.
	}
}
