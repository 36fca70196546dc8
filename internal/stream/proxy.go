package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/markb/cloudtune/internal/adapter"
	"github.com/markb/cloudtune/internal/log"
)

// Proxy turns stream descriptors into HTTP responses. One instance serves
// all backends; it holds the client used for server-side relays.
type Proxy struct {
	client *http.Client
}

// New creates a range proxy. client carries upstream relay fetches; it
// must not enforce an overall timeout, streams run as long as a track
// plays. Nil means a client with default transport settings.
func New(client *http.Client) *Proxy {
	if client == nil {
		client = &http.Client{}
	}
	return &Proxy{client: client}
}

// Serve answers one stream request according to the descriptor's variant.
// Any failure after the status line has been written aborts the connection
// without a retry; the player restarts or skips on its side.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, desc *adapter.StreamDescriptor) {
	switch desc.Variant {
	case adapter.StreamRedirect:
		// Range handling is delegated to the browser's follow-up request
		// against the pre-authenticated URL.
		http.Redirect(w, r, desc.TargetURL, http.StatusFound)
	case adapter.StreamDirect:
		p.serveDirect(w, r, desc)
	case adapter.StreamProxy:
		p.serveRelay(w, r, desc)
	default:
		http.Error(w, "unsupported stream variant", http.StatusInternalServerError)
	}
}

// serveDirect asks the adapter for a byte-exact substream and writes the
// 206/200 framing around it.
func (p *Proxy) serveDirect(w http.ResponseWriter, r *http.Request, desc *adapter.StreamDescriptor) {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", adapter.MIMEForName(desc.Name))

	rng, ranged := ParseRange(r.Header.Get("Range"), desc.Size)
	if ranged && rng.End < 0 && desc.Size < 0 {
		// Open-ended range with unknown total: no range math is possible,
		// fall back to a full-body response.
		ranged = false
	}

	if !ranged {
		if desc.Size >= 0 {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", desc.Size))
		}
		p.copyDirect(r.Context(), w, desc, 0, -1, http.StatusOK)
		return
	}

	start, end := rng.Start, rng.End
	if desc.Size >= 0 {
		if end < 0 || end >= desc.Size {
			end = desc.Size - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, desc.Size))
	} else {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", start, end))
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
	p.copyDirect(r.Context(), w, desc, start, end, http.StatusPartialContent)
}

// copyDirect opens the substream and relays it. Open failures still have
// a clean status line available; copy failures abort mid-body.
func (p *Proxy) copyDirect(ctx context.Context, w http.ResponseWriter, desc *adapter.StreamDescriptor, start, end int64, status int) {
	body, err := desc.Open(ctx, start, end)
	if err != nil {
		log.Warn("opening stream failed", "name", desc.Name, "error", err.Error())
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.WriteHeader(status)
	if _, err := io.Copy(w, body); err != nil {
		logCopyErr(ctx, desc.Name, err)
	}
}

// serveRelay fetches the target URL itself, forwarding the descriptor's
// headers plus the inbound Range verbatim, and mirrors the upstream's
// 206-or-200 decision.
func (p *Proxy) serveRelay(w http.ResponseWriter, r *http.Request, desc *adapter.StreamDescriptor) {
	method := desc.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(r.Context(), method, desc.TargetURL, nil)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	for k, vs := range desc.ForwardHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if raw := r.Header.Get("Range"); raw != "" {
		// Only a well-formed range is worth forwarding; a malformed one
		// means full body, which is the upstream default anyway.
		if _, ok := ParseRange(raw, adapter.SizeUnknown); ok {
			req.Header.Set("Range", raw)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logCopyErr(r.Context(), desc.Name, err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", adapter.MIMEForName(desc.Name))

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			w.Header().Set("Content-Range", cr)
		}
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			w.Header().Set("Content-Length", cl)
		}
		w.WriteHeader(http.StatusPartialContent)
	case http.StatusOK:
		// Upstream ignored the range (or none was asked). Relay as-is.
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			w.Header().Set("Content-Length", cl)
		}
		w.WriteHeader(http.StatusOK)
	default:
		log.Warn("upstream rejected stream fetch", "name", desc.Name, "status", resp.StatusCode)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		logCopyErr(r.Context(), desc.Name, err)
	}
}

// logCopyErr distinguishes a client walking away (debug, routine when the
// user skips tracks) from a genuine upstream failure (warn).
func logCopyErr(ctx context.Context, name string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Debug("stream canceled by client", "name", name)
		return
	}
	log.Warn("stream aborted", "name", name, "error", err.Error())
}
