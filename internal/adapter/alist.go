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

// AListAdapter speaks to an AList gateway, itself an aggregator over many
// drives. Paths are gateway-virtual. The raw_url a resolve returns may be
// addressed for the gateway host's network (a LAN NAS, a signed vendor
// URL), so the server fetches it rather than redirecting the browser;
// AList raw endpoints honor Range pass-through.
type AListAdapter struct {
	sessions *session.Registry[*alistSession]
	client   *http.Client
}

type alistSession struct {
	baseURL string
	token   string
}

// NewAList creates the AList gateway adapter.
func NewAList() *AListAdapter {
	return &AListAdapter{
		sessions: session.NewRegistry[*alistSession](string(KindAList)),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Kind implements Adapter.
func (a *AListAdapter) Kind() Kind { return KindAList }

// alistEnvelope is the {code, message, data} wrapper on every response.
type alistEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// post runs an authenticated JSON RPC call and unwraps the envelope.
func (a *AListAdapter) post(ctx context.Context, sess *alistSession, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Authorization", sess.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var env alistEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	switch env.Code {
	case 200:
	case 401:
		return ErrAuth
	case 404, 500:
		// AList reports missing paths as 500 "object not found".
		if strings.Contains(env.Message, "not found") || env.Code == 404 {
			return ErrNotFound
		}
		return &RemoteError{Code: fmt.Sprintf("%d", env.Code), Message: env.Message}
	default:
		return &RemoteError{Code: fmt.Sprintf("%d", env.Code), Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return nil
}

// get runs an authenticated GET call and unwraps the envelope.
func (a *AListAdapter) get(ctx context.Context, sess *alistSession, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Authorization", sess.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var env alistEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if env.Code != 200 {
		if env.Code == 401 {
			return ErrAuth
		}
		return &RemoteError{Code: fmt.Sprintf("%d", env.Code), Message: env.Message}
	}
	return json.Unmarshal(env.Data, out)
}

// Connect probes /api/me with the supplied gateway token.
func (a *AListAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.URL == "" || creds.Token == "" {
		return "", &Error{Op: "connect", Kind: KindAList, Err: fmt.Errorf("%w: gateway URL and token required", ErrAuth)}
	}
	sess := &alistSession{
		baseURL: strings.TrimRight(creds.URL, "/"),
		token:   creds.Token,
	}

	var me struct {
		Username string `json:"username"`
	}
	if err := a.get(ctx, sess, "/api/me", &me); err != nil {
		return "", &Error{Op: "connect", Kind: KindAList, Err: err}
	}
	if me.Username == "" {
		return "", &Error{Op: "connect", Kind: KindAList, Err: ErrAuth}
	}
	return a.sessions.Add(sess), nil
}

// alistObject models one fs/list row or an fs/get payload.
type alistObject struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	IsDir  bool   `json:"is_dir"`
	RawURL string `json:"raw_url"`
}

// List implements Adapter via fs/list.
func (a *AListAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindAList, Err: ErrNotConnected}
	}
	if ref == "" {
		ref = "/"
	}

	var data struct {
		Content []alistObject `json:"content"`
	}
	in := map[string]any{"path": ref, "password": "", "page": 1, "per_page": 0, "refresh": false}
	if err := a.post(ctx, sess, "/api/fs/list", in, &data); err != nil {
		return nil, &Error{Op: "list", Kind: KindAList, Err: err}
	}

	entries := make([]Entry, 0, len(data.Content))
	for _, obj := range data.Content {
		childRef := path.Join("/", ref, obj.Name)
		if obj.IsDir {
			entries = append(entries, Entry{Name: obj.Name, Ref: childRef, Kind: EntryDirectory})
			continue
		}
		entries = append(entries, Entry{
			Name:            obj.Name,
			Ref:             childRef,
			Kind:            EntryFile,
			SizeBytes:       obj.Size,
			IsPlayableAudio: IsPlayableAudio(obj.Name),
		})
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter via fs/get; the raw_url is proxied.
func (a *AListAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindAList, Err: ErrNotConnected}
	}

	var obj alistObject
	in := map[string]any{"path": ref, "password": ""}
	if err := a.post(ctx, sess, "/api/fs/get", in, &obj); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindAList, Err: err}
	}
	if obj.IsDir || obj.RawURL == "" {
		return nil, &Error{Op: "resolve", Kind: KindAList, Err: ErrNotFound}
	}

	size := obj.Size
	if size == 0 {
		size = SizeUnknown
	}

	name := obj.Name
	if name == "" {
		name = path.Base(ref)
	}

	// Gateway-relative raw URLs happen when AList serves its own storage.
	target := obj.RawURL
	if strings.HasPrefix(target, "/") {
		target = sess.baseURL + target
	}

	header := http.Header{}
	header.Set("Authorization", sess.token)

	return &StreamDescriptor{
		Variant:       StreamProxy,
		Name:          name,
		Size:          size,
		TargetURL:     target,
		ForwardHeader: header,
	}, nil
}

// Disconnect implements Adapter.
func (a *AListAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}
