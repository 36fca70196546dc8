package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/markb/cloudtune/internal/session"
)

// Dropbox RPC and content endpoints. Overridable for tests.
const (
	dropboxAPIBase     = "https://api.dropboxapi.com/2"
	dropboxContentBase = "https://content.dropboxapi.com/2"
)

// DropboxAdapter addresses files by path. Downloads go through the content
// endpoint, which needs the bearer token and a Dropbox-API-Arg header the
// browser cannot supply, so resolve yields a proxyFetch descriptor: the
// server relays the bytes, passing the inbound Range through (the content
// endpoint honors byte ranges).
type DropboxAdapter struct {
	sessions    *session.Registry[*dropboxSession]
	apiBase     string
	contentBase string
	client      *http.Client
}

type dropboxSession struct {
	token string
}

// NewDropbox creates the Dropbox adapter.
func NewDropbox() *DropboxAdapter {
	return &DropboxAdapter{
		sessions:    session.NewRegistry[*dropboxSession](string(KindDropbox)),
		apiBase:     dropboxAPIBase,
		contentBase: dropboxContentBase,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Kind implements Adapter.
func (a *DropboxAdapter) Kind() Kind { return KindDropbox }

// rpc posts a JSON body to an RPC endpoint and decodes the response.
func (a *DropboxAdapter) rpc(ctx context.Context, sess *dropboxSession, endpoint string, in, out any) error {
	body := []byte("null")
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// Dropbox reports missing paths as a 409 with a path/not_found tag.
		if resp.StatusCode == http.StatusConflict && strings.Contains(string(msg), "not_found") {
			return ErrNotFound
		}
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return nil
}

// Connect probes users/get_current_account.
func (a *DropboxAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token == "" {
		return "", &Error{Op: "connect", Kind: KindDropbox, Err: fmt.Errorf("%w: access token required", ErrAuth)}
	}
	sess := &dropboxSession{token: creds.Token}

	var probe struct {
		AccountID string `json:"account_id"`
	}
	if err := a.rpc(ctx, sess, "/users/get_current_account", nil, &probe); err != nil {
		return "", &Error{Op: "connect", Kind: KindDropbox, Err: err}
	}
	if probe.AccountID == "" {
		return "", &Error{Op: "connect", Kind: KindDropbox, Err: ErrUnsupported}
	}
	return a.sessions.Add(sess), nil
}

// dropboxPath maps the player's "/" root convention onto Dropbox's "".
func dropboxPath(ref string) string {
	if ref == "" || ref == "/" {
		return ""
	}
	return ref
}

// dropboxEntry models one files/list_folder row.
type dropboxEntry struct {
	Tag         string `json:".tag"`
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

// List implements Adapter via files/list_folder (+continue).
func (a *DropboxAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindDropbox, Err: ErrNotConnected}
	}

	var entries []Entry
	var page struct {
		Entries []dropboxEntry `json:"entries"`
		Cursor  string         `json:"cursor"`
		HasMore bool           `json:"has_more"`
	}

	err := a.rpc(ctx, sess, "/files/list_folder", map[string]any{"path": dropboxPath(ref)}, &page)
	for {
		if err != nil {
			return nil, &Error{Op: "list", Kind: KindDropbox, Err: err}
		}
		for _, e := range page.Entries {
			switch e.Tag {
			case "folder":
				entries = append(entries, Entry{Name: e.Name, Ref: e.PathDisplay, Kind: EntryDirectory})
			case "file":
				entries = append(entries, Entry{
					Name:            e.Name,
					Ref:             e.PathDisplay,
					Kind:            EntryFile,
					SizeBytes:       e.Size,
					IsPlayableAudio: IsPlayableAudio(e.Name),
				})
			}
		}
		if !page.HasMore {
			break
		}
		cursor := page.Cursor
		page.Entries, page.HasMore, page.Cursor = nil, false, ""
		err = a.rpc(ctx, sess, "/files/list_folder/continue", map[string]any{"cursor": cursor}, &page)
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. get_metadata supplies the size; the proxy
// fetches the content endpoint with the API-arg headers.
func (a *DropboxAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindDropbox, Err: ErrNotConnected}
	}

	var meta dropboxEntry
	if err := a.rpc(ctx, sess, "/files/get_metadata", map[string]any{"path": dropboxPath(ref)}, &meta); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindDropbox, Err: err}
	}
	if meta.Tag == "folder" {
		return nil, &Error{Op: "resolve", Kind: KindDropbox, Err: ErrNotFound}
	}

	name := meta.Name
	if name == "" {
		name = path.Base(ref)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.token)
	header.Set("Dropbox-API-Arg", dropboxAPIArg(dropboxPath(ref)))

	return &StreamDescriptor{
		Variant:       StreamProxy,
		Name:          name,
		Size:          meta.Size,
		TargetURL:     a.contentBase + "/files/download",
		ForwardHeader: header,
		Method:        http.MethodPost,
	}, nil
}

// Disconnect implements Adapter.
func (a *DropboxAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}

// dropboxAPIArg renders the Dropbox-API-Arg header value. HTTP headers must
// stay ASCII, so non-ASCII path runes are escaped as \uXXXX.
func dropboxAPIArg(p string) string {
	arg, _ := json.Marshal(map[string]string{"path": p})
	var b strings.Builder
	for _, r := range string(arg) {
		if r > 0x7e {
			fmt.Fprintf(&b, "\\u%04x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
