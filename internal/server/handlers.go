// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markb/cloudtune/internal/adapter"
	"github.com/markb/cloudtune/internal/log"
)

// connectRequest is the body of POST /api/{backend}/connect. Credentials is
// flattened so clients post the raw field set for their backend.
type connectRequest struct {
	adapter.Credentials
}

type signRequest struct {
	ClientID  string `json:"clientId"`
	Ref       string `json:"ref"`
	Path      string `json:"path"`
	FileID    string `json:"fileId"`
	ExpiresIn int    `json:"expiresIn"`
}

// ref returns whichever reference spelling the client used.
func (r *signRequest) ref() string {
	for _, v := range []string{r.Ref, r.Path, r.FileID} {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// writeAdapterError maps the adapter error taxonomy onto HTTP statuses:
// credential problems and unknown sessions are the caller's fault (401),
// missing refs are 404, and everything upstream-shaped is a 502 so the
// client can tell its own mistakes from backend weather.
func writeAdapterError(w http.ResponseWriter, err error) {
	switch {
	case adapter.IsNotConnected(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case adapter.IsAuth(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case adapter.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case adapter.IsUnreachable(err), errors.Is(err, adapter.ErrUnsupported):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		if _, ok := adapter.IsRemote(err); ok {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// adapterFor resolves the {backend} URL parameter. Unknown kinds 404.
func (s *Server) adapterFor(w http.ResponseWriter, r *http.Request) (adapter.Adapter, bool) {
	kind := adapter.Kind(chi.URLParam(r, "backend"))
	a, ok := s.adapters[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown backend: "+string(kind))
		return nil, false
	}
	return a, true
}

// refParam pulls the file/folder reference from the query. Clients written
// against individual cloud APIs use different parameter names for the same
// thing, so all the common spellings are accepted.
func refParam(r *http.Request) string {
	q := r.URL.Query()
	for _, name := range []string{"ref", "path", "folderId", "fileId", "fsId"} {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// handleConnect validates the posted credentials against the live backend
// and returns a session id for subsequent calls.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapterFor(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clientID, err := a.Connect(r.Context(), req.Credentials)
	if err != nil {
		log.Warn("connect failed", "backend", a.Kind(), "error", err.Error())
		writeAdapterError(w, err)
		return
	}

	log.Info("backend connected", "backend", a.Kind(), "client_id", clientID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"clientId": clientID,
	})
}

// handleList returns the normalized single-level listing under ref.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapterFor(w, r)
	if !ok {
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "clientId required")
		return
	}

	entries, err := a.List(r.Context(), clientID, refParam(r))
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   entries,
	})
}

// handleStream resolves the file and hands the response to the range proxy.
// Access is either clientId+ref (first-party player) or a signed token
// minted by /sign (for audio elements that cannot attach headers or for
// sharing within the token's lifetime).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapterFor(w, r)
	if !ok {
		return
	}

	clientID := r.URL.Query().Get("clientId")
	ref := refParam(r)

	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := ValidateStreamToken(token, s.jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if claims.Backend != string(a.Kind()) {
			writeError(w, http.StatusUnauthorized, "token issued for a different backend")
			return
		}
		clientID, ref = claims.ClientID, claims.Ref
	}

	if clientID == "" || ref == "" {
		writeError(w, http.StatusBadRequest, "clientId and ref required")
		return
	}

	desc, err := a.Resolve(r.Context(), clientID, ref)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	s.proxy.Serve(w, r, desc)
}

// handleSign mints a signed stream URL token for one file.
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapterFor(w, r)
	if !ok {
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := req.ref()
	if req.ClientID == "" || ref == "" {
		writeError(w, http.StatusBadRequest, "clientId and ref required")
		return
	}

	token, err := GenerateStreamToken(string(a.Kind()), req.ClientID, ref, req.ExpiresIn, s.jwtSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"url":     "/api/" + string(a.Kind()) + "/stream?token=" + token,
	})
}

// handleDisconnect drops the session. Always succeeds; disconnecting an
// unknown or already-dropped session is a no-op.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapterFor(w, r)
	if !ok {
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		var body struct {
			ClientID string `json:"clientId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			clientID = body.ClientID
		}
	}

	a.Disconnect(clientID)
	log.Info("backend disconnected", "backend", a.Kind(), "client_id", clientID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
