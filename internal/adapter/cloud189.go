package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markb/cloudtune/internal/session"
)

// cloud189APIBase is the Cloud 189 (天翼云盘) web API. Overridable for tests.
const cloud189APIBase = "https://cloud.189.cn"

// cloud189RootFolder is the well-known id of the personal-space root.
const cloud189RootFolder = "-11"

// Cloud189Adapter serves the China Telecom cloud drive. The web API is
// cookie-authenticated and its download URLs are only honored when the
// session cookie rides along, so resolve yields a proxyFetch descriptor
// carrying the cookie; the server relays the bytes. Refs are folder/file
// ids.
type Cloud189Adapter struct {
	sessions *session.Registry[*cloud189Session]
	baseURL  string
	client   *http.Client
}

type cloud189Session struct {
	cookie string
}

// NewCloud189 creates the Cloud 189 adapter. Redirects are followed for
// API calls but the download URL is handed to the proxy unresolved.
func NewCloud189() *Cloud189Adapter {
	return &Cloud189Adapter{
		sessions: session.NewRegistry[*cloud189Session](string(KindCloud189)),
		baseURL:  cloud189APIBase,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Kind implements Adapter.
func (a *Cloud189Adapter) Kind() Kind { return KindCloud189 }

// apiGet runs a cookie-authenticated JSON API call. res_code 0 is success;
// any other code is a backend domain error passed through verbatim.
func (a *Cloud189Adapter) apiGet(ctx context.Context, sess *cloud189Session, endpoint string, q url.Values, out any) error {
	u := a.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Cookie", sess.cookie)
	req.Header.Set("Accept", "application/json;charset=UTF-8")

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return nil
}

// resCode is the envelope every 189 API payload carries. An expired cookie
// surfaces as a non-zero code on an otherwise-200 response.
type resCode struct {
	ResCode    json.Number `json:"res_code"`
	ResMessage string      `json:"res_message"`
}

func (r *resCode) err() error {
	code := r.ResCode.String()
	if code == "" || code == "0" {
		return nil
	}
	if strings.Contains(strings.ToLower(r.ResMessage), "login") || code == "InvalidSessionKey" {
		return ErrAuth
	}
	return &RemoteError{Code: code, Message: r.ResMessage}
}

// Connect probes the storage-quota endpoint, the cheapest authenticated
// call the web API offers.
func (a *Cloud189Adapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Cookie == "" {
		return "", &Error{Op: "connect", Kind: KindCloud189, Err: fmt.Errorf("%w: session cookie required", ErrAuth)}
	}
	sess := &cloud189Session{cookie: creds.Cookie}

	var probe struct {
		resCode
		CloudCapacityInfo json.RawMessage `json:"cloudCapacityInfo"`
	}
	if err := a.apiGet(ctx, sess, "/api/portal/getUserSizeInfo.action", nil, &probe); err != nil {
		return "", &Error{Op: "connect", Kind: KindCloud189, Err: err}
	}
	if err := probe.err(); err != nil {
		return "", &Error{Op: "connect", Kind: KindCloud189, Err: err}
	}
	if len(probe.CloudCapacityInfo) == 0 {
		return "", &Error{Op: "connect", Kind: KindCloud189, Err: ErrAuth}
	}
	return a.sessions.Add(sess), nil
}

// List implements Adapter via listFiles.action, paging 100 rows at a time.
func (a *Cloud189Adapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindCloud189, Err: ErrNotConnected}
	}
	if ref == "" {
		ref = cloud189RootFolder
	}

	var entries []Entry
	for pageNum := 1; ; pageNum++ {
		q := url.Values{}
		q.Set("folderId", ref)
		q.Set("pageNum", fmt.Sprintf("%d", pageNum))
		q.Set("pageSize", "100")
		q.Set("mediaType", "0")
		q.Set("orderBy", "filename")

		var page struct {
			resCode
			FileListAO struct {
				Count      int `json:"count"`
				FolderList []struct {
					ID   json.Number `json:"id"`
					Name string      `json:"name"`
				} `json:"folderList"`
				FileList []struct {
					ID   json.Number `json:"id"`
					Name string      `json:"name"`
					Size int64       `json:"size"`
				} `json:"fileList"`
			} `json:"fileListAO"`
		}
		if err := a.apiGet(ctx, sess, "/api/open/file/listFiles.action", q, &page); err != nil {
			return nil, &Error{Op: "list", Kind: KindCloud189, Err: err}
		}
		if err := page.err(); err != nil {
			return nil, &Error{Op: "list", Kind: KindCloud189, Err: err}
		}

		got := len(page.FileListAO.FolderList) + len(page.FileListAO.FileList)
		for _, f := range page.FileListAO.FolderList {
			entries = append(entries, Entry{Name: f.Name, Ref: f.ID.String(), Kind: EntryDirectory})
		}
		for _, f := range page.FileListAO.FileList {
			entries = append(entries, Entry{
				Name:            f.Name,
				Ref:             f.ID.String(),
				Kind:            EntryFile,
				SizeBytes:       f.Size,
				IsPlayableAudio: IsPlayableAudio(f.Name),
			})
		}

		if got < 100 {
			break
		}
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. getFileDownloadUrl returns a URL that still
// wants the session cookie, so the proxy relays it.
func (a *Cloud189Adapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindCloud189, Err: ErrNotConnected}
	}

	q := url.Values{}
	q.Set("fileId", ref)

	var info struct {
		resCode
		FileDownloadUrl string `json:"fileDownloadUrl"`
		FileName        string `json:"fileName"`
		FileSize        int64  `json:"fileSize"`
	}
	if err := a.apiGet(ctx, sess, "/api/open/file/getFileDownloadUrl.action", q, &info); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindCloud189, Err: err}
	}
	if err := info.err(); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindCloud189, Err: err}
	}
	if info.FileDownloadUrl == "" {
		return nil, &Error{Op: "resolve", Kind: KindCloud189, Err: ErrNotFound}
	}

	size := info.FileSize
	if size == 0 {
		size = SizeUnknown
	}

	header := http.Header{}
	header.Set("Cookie", sess.cookie)

	return &StreamDescriptor{
		Variant:       StreamProxy,
		Name:          info.FileName,
		Size:          size,
		TargetURL:     info.FileDownloadUrl,
		ForwardHeader: header,
	}, nil
}

// Disconnect implements Adapter.
func (a *Cloud189Adapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}
