package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/markb/cloudtune/internal/session"
)

// graphAPIBase is the Microsoft Graph endpoint. Overridable for tests.
const graphAPIBase = "https://graph.microsoft.com/v1.0"

// OneDriveAdapter addresses files by Graph drive-item id. Graph exposes a
// short-lived pre-authenticated download URL per item that any client can
// fetch with no extra headers, so resolve yields a redirect descriptor and
// the server never relays OneDrive bytes.
type OneDriveAdapter struct {
	sessions *session.Registry[*onedriveSession]
	baseURL  string
}

type onedriveSession struct {
	client *http.Client
}

// NewOneDrive creates the OneDrive adapter.
func NewOneDrive() *OneDriveAdapter {
	return &OneDriveAdapter{
		sessions: session.NewRegistry[*onedriveSession](string(KindOneDrive)),
		baseURL:  graphAPIBase,
	}
}

// Kind implements Adapter.
func (a *OneDriveAdapter) Kind() Kind { return KindOneDrive }

// Connect probes /me/drive with the bearer token.
func (a *OneDriveAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token == "" {
		return "", &Error{Op: "connect", Kind: KindOneDrive, Err: fmt.Errorf("%w: access token required", ErrAuth)}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})
	sess := &onedriveSession{client: oauth2.NewClient(ctx, ts)}

	var probe struct {
		ID        string `json:"id"`
		DriveType string `json:"driveType"`
	}
	if err := a.getJSON(ctx, sess, a.baseURL+"/me/drive", &probe); err != nil {
		return "", &Error{Op: "connect", Kind: KindOneDrive, Err: err}
	}
	if probe.ID == "" {
		return "", &Error{Op: "connect", Kind: KindOneDrive, Err: ErrUnsupported}
	}
	return a.sessions.Add(sess), nil
}

func (a *OneDriveAdapter) getJSON(ctx context.Context, sess *onedriveSession, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	resp, err := sess.client.Do(req)
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

// driveItem models the Graph drive-item fields the adapter reads.
type driveItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Size        int64           `json:"size"`
	Folder      json.RawMessage `json:"folder"`
	DownloadURL string          `json:"@microsoft.graph.downloadUrl"`
}

func (i *driveItem) isFolder() bool { return len(i.Folder) > 0 }

// List implements Adapter, paging through the children collection.
func (a *OneDriveAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindOneDrive, Err: ErrNotConnected}
	}

	next := a.baseURL + "/me/drive/root/children?$select=id,name,size,folder,file&$top=200"
	if ref != "" {
		next = a.baseURL + "/me/drive/items/" + url.PathEscape(ref) + "/children?$select=id,name,size,folder,file&$top=200"
	}

	var entries []Entry
	for next != "" {
		var page struct {
			NextLink string      `json:"@odata.nextLink"`
			Value    []driveItem `json:"value"`
		}
		if err := a.getJSON(ctx, sess, next, &page); err != nil {
			return nil, &Error{Op: "list", Kind: KindOneDrive, Err: err}
		}

		for _, item := range page.Value {
			if item.isFolder() {
				entries = append(entries, Entry{Name: item.Name, Ref: item.ID, Kind: EntryDirectory})
				continue
			}
			entries = append(entries, Entry{
				Name:            item.Name,
				Ref:             item.ID,
				Kind:            EntryFile,
				SizeBytes:       item.Size,
				IsPlayableAudio: IsPlayableAudio(item.Name),
			})
		}
		next = page.NextLink
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. The pre-authenticated download URL is only
// valid for a short window, which is fine: it is minted per stream request
// and consumed immediately by the browser's follow-up fetch.
func (a *OneDriveAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindOneDrive, Err: ErrNotConnected}
	}

	var item driveItem
	itemURL := a.baseURL + "/me/drive/items/" + url.PathEscape(ref) + "?$select=id,name,size,folder,file,content.downloadUrl"
	if err := a.getJSON(ctx, sess, itemURL, &item); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindOneDrive, Err: err}
	}
	if item.isFolder() || item.DownloadURL == "" {
		return nil, &Error{Op: "resolve", Kind: KindOneDrive, Err: ErrNotFound}
	}

	return &StreamDescriptor{
		Variant:   StreamRedirect,
		Name:      item.Name,
		Size:      item.Size,
		TargetURL: item.DownloadURL,
	}, nil
}

// Disconnect implements Adapter.
func (a *OneDriveAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}
