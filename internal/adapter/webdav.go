package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/markb/cloudtune/internal/log"
	"github.com/markb/cloudtune/internal/session"
)

// WebDAVAdapter speaks the WebDAV subset the player needs: PROPFIND for
// listings and ranged GET for streaming. Refs are server paths. WebDAV
// servers honor byte ranges natively, so every resolve is a direct
// descriptor and the adapter forwards the requested window upstream.
type WebDAVAdapter struct {
	sessions *session.Registry[*webdavSession]
	client   *http.Client
}

type webdavSession struct {
	baseURL  string // scheme://host[/prefix], no trailing slash
	basePath string // path component of baseURL, "" when mounted at root
	username string
	password string
}

// NewWebDAV creates the WebDAV adapter. The client carries no overall
// timeout because it also serves long-running streams; connect probes are
// bounded by their request context instead.
func NewWebDAV() *WebDAVAdapter {
	return &WebDAVAdapter{
		sessions: session.NewRegistry[*webdavSession](string(KindWebDAV)),
		client:   &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}},
	}
}

// Kind implements Adapter.
func (a *WebDAVAdapter) Kind() Kind { return KindWebDAV }

// Connect probes the server with a Depth 0 PROPFIND against the root.
func (a *WebDAVAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.URL == "" {
		return "", &Error{Op: "connect", Kind: KindWebDAV, Err: fmt.Errorf("%w: server URL required", ErrAuth)}
	}
	sess := &webdavSession{
		baseURL:  strings.TrimRight(creds.URL, "/"),
		username: creds.Username,
		password: creds.Password,
	}
	if u, err := url.Parse(sess.baseURL); err == nil && u.Path != "" {
		sess.basePath = strings.TrimRight(path.Clean(u.Path), "/")
	}
	if _, err := a.propfind(ctx, sess, "/", 0); err != nil {
		return "", &Error{Op: "connect", Kind: KindWebDAV, Err: err}
	}
	return a.sessions.Add(sess), nil
}

// davMultistatus models the PROPFIND 207 response body.
type davMultistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href     string        `xml:"DAV: href"`
	Propstat []davPropstat `xml:"DAV: propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"DAV: prop"`
	Status string  `xml:"DAV: status"`
}

type davProp struct {
	DisplayName   string          `xml:"DAV: displayname"`
	ContentLength string          `xml:"DAV: getcontentlength"`
	ResourceType  davResourceType `xml:"DAV: resourcetype"`
}

type davResourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:displayname/>
    <D:getcontentlength/>
    <D:resourcetype/>
  </D:prop>
</D:propfind>`

// davURL joins the session base URL with an escaped server path.
func (s *webdavSession) davURL(ref string) string {
	u := url.URL{Path: path.Clean("/" + ref)}
	return s.baseURL + u.EscapedPath()
}

// propfind issues a PROPFIND at the given depth and decodes the 207 body.
func (a *WebDAVAdapter) propfind(ctx context.Context, sess *webdavSession, ref string, depth int) ([]davResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", sess.davURL(ref), strings.NewReader(propfindBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Depth", strconv.Itoa(depth))
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if sess.username != "" {
		req.SetBasicAuth(sess.username, sess.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusMultiStatus:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RemoteError{Code: strconv.Itoa(resp.StatusCode), Message: strings.TrimSpace(string(body))}
	}

	var ms davMultistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return ms.Responses, nil
}

// davEntry converts one multistatus response into an Entry. Server hrefs
// carry the mount prefix when the share lives under a URL path (Nextcloud,
// mod_dav mounts), so they are relativized against basePath before becoming
// refs; refs then round-trip through davURL. Returns false for the
// container's own row or rows missing a usable prop set.
func davEntry(r davResponse, basePath, containerPath string) (Entry, bool) {
	href, err := url.PathUnescape(r.Href)
	if err != nil {
		href = r.Href
	}
	// Hrefs may be absolute URLs; reduce to the path component.
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		href = u.Path
	}
	hrefPath := strings.TrimRight(href, "/")
	switch {
	case basePath == "":
	case hrefPath == basePath:
		hrefPath = ""
	case strings.HasPrefix(hrefPath, basePath+"/"):
		hrefPath = hrefPath[len(basePath):]
	}
	if hrefPath == "" || hrefPath == strings.TrimRight(containerPath, "/") {
		return Entry{}, false
	}

	var prop *davProp
	for i := range r.Propstat {
		if strings.Contains(r.Propstat[i].Status, "200") {
			prop = &r.Propstat[i].Prop
			break
		}
	}
	if prop == nil {
		return Entry{}, false
	}

	name := prop.DisplayName
	if name == "" {
		name = path.Base(hrefPath)
	}

	if prop.ResourceType.Collection != nil {
		return Entry{Name: name, Ref: hrefPath, Kind: EntryDirectory}, true
	}

	size, _ := strconv.ParseInt(prop.ContentLength, 10, 64)
	return Entry{
		Name:            name,
		Ref:             hrefPath,
		Kind:            EntryFile,
		SizeBytes:       size,
		IsPlayableAudio: IsPlayableAudio(name),
	}, true
}

// List implements Adapter via a Depth 1 PROPFIND.
func (a *WebDAVAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindWebDAV, Err: ErrNotConnected}
	}
	if ref == "" {
		ref = "/"
	}

	responses, err := a.propfind(ctx, sess, ref, 1)
	if err != nil {
		return nil, &Error{Op: "list", Kind: KindWebDAV, Err: err}
	}

	containerPath := path.Clean("/" + ref)
	entries := make([]Entry, 0, len(responses))
	for _, r := range responses {
		e, ok := davEntry(r, sess.basePath, containerPath)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. A Depth 0 PROPFIND supplies the size; the
// descriptor's Open forwards the byte window as an upstream Range GET.
func (a *WebDAVAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindWebDAV, Err: ErrNotConnected}
	}

	responses, err := a.propfind(ctx, sess, ref, 0)
	if err != nil {
		return nil, &Error{Op: "resolve", Kind: KindWebDAV, Err: err}
	}
	if len(responses) == 0 {
		return nil, &Error{Op: "resolve", Kind: KindWebDAV, Err: ErrNotFound}
	}

	size := SizeUnknown
	for _, ps := range responses[0].Propstat {
		if n, err := strconv.ParseInt(ps.Prop.ContentLength, 10, 64); err == nil && n >= 0 {
			size = n
			break
		}
	}

	target := sess.davURL(ref)
	name := path.Base(path.Clean("/" + ref))

	return &StreamDescriptor{
		Variant: StreamDirect,
		Name:    name,
		Size:    size,
		Open: func(ctx context.Context, start, end int64) (io.ReadCloser, error) {
			return a.openRange(ctx, sess, target, start, end)
		},
	}, nil
}

// openRange GETs the byte window. Servers that ignore Range and reply 200
// get their stream trimmed locally so the caller still sees exact bytes.
func (a *WebDAVAdapter) openRange(ctx context.Context, sess *webdavSession, target string, start, end int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStream, err)
	}
	if sess.username != "" {
		req.SetBasicAuth(sess.username, sess.password)
	}
	if start > 0 || end >= 0 {
		req.Header.Set("Range", rangeHeader(start, end))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStream, err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		if start > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %v", ErrStream, err)
			}
		}
		if end >= 0 {
			return &sectionReadCloser{
				Reader: io.LimitReader(resp.Body, end-start+1),
				closer: resp.Body,
			}, nil
		}
		return resp.Body, nil
	default:
		resp.Body.Close()
		log.Warn("webdav range fetch failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: upstream status %d", ErrStream, resp.StatusCode)
	}
}

// Disconnect implements Adapter.
func (a *WebDAVAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}

// rangeHeader renders a Range request header for [start, end], open-ended
// when end < 0.
func rangeHeader(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}
