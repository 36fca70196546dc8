package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/markb/cloudtune/internal/session"
)

// driveAPIBase is the Drive v3 REST endpoint. Overridable for tests.
const driveAPIBase = "https://www.googleapis.com/drive/v3"

const driveFolderMIME = "application/vnd.google-apps.folder"

// GoogleDriveAdapter addresses files by Drive item id. The per-file
// alt=media download endpoint honors Range directly, so resolve yields a
// direct descriptor that forwards the requested window with the session's
// bearer token attached.
type GoogleDriveAdapter struct {
	sessions *session.Registry[*driveSession]
	baseURL  string
}

type driveSession struct {
	client *http.Client // oauth2-wrapped, injects the bearer token
}

// NewGoogleDrive creates the Google Drive adapter.
func NewGoogleDrive() *GoogleDriveAdapter {
	return &GoogleDriveAdapter{
		sessions: session.NewRegistry[*driveSession](string(KindGoogleDrive)),
		baseURL:  driveAPIBase,
	}
}

// Kind implements Adapter.
func (a *GoogleDriveAdapter) Kind() Kind { return KindGoogleDrive }

// Connect wraps the access token in an oauth2 client and probes the
// /about endpoint. Token refresh is the operator's concern; a static
// source keeps the session's credential immutable.
func (a *GoogleDriveAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token == "" {
		return "", &Error{Op: "connect", Kind: KindGoogleDrive, Err: fmt.Errorf("%w: access token required", ErrAuth)}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})
	client := oauth2.NewClient(ctx, ts)
	sess := &driveSession{client: client}

	var probe struct {
		User struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}
	if err := a.getJSON(ctx, sess, a.baseURL+"/about?fields=user", &probe); err != nil {
		return "", &Error{Op: "connect", Kind: KindGoogleDrive, Err: err}
	}
	return a.sessions.Add(sess), nil
}

// getJSON runs an authenticated GET and decodes the JSON payload.
func (a *GoogleDriveAdapter) getJSON(ctx context.Context, sess *driveSession, rawURL string, out any) error {
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

// driveFile models the fields requested from files.list / files.get.
// Drive reports size as a decimal string.
type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size"`
}

func (f *driveFile) sizeBytes() int64 {
	n, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// List implements Adapter, paging through files.list for one folder.
func (a *GoogleDriveAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindGoogleDrive, Err: ErrNotConnected}
	}
	if ref == "" {
		ref = "root"
	}

	var entries []Entry
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", ref))
		q.Set("fields", "nextPageToken,files(id,name,mimeType,size)")
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page struct {
			NextPageToken string      `json:"nextPageToken"`
			Files         []driveFile `json:"files"`
		}
		if err := a.getJSON(ctx, sess, a.baseURL+"/files?"+q.Encode(), &page); err != nil {
			return nil, &Error{Op: "list", Kind: KindGoogleDrive, Err: err}
		}

		for _, f := range page.Files {
			if f.MimeType == driveFolderMIME {
				entries = append(entries, Entry{Name: f.Name, Ref: f.ID, Kind: EntryDirectory})
				continue
			}
			entries = append(entries, Entry{
				Name:            f.Name,
				Ref:             f.ID,
				Kind:            EntryFile,
				SizeBytes:       f.sizeBytes(),
				IsPlayableAudio: IsPlayableAudio(f.Name),
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. files.get supplies name and size; the
// descriptor's Open forwards the byte window to alt=media.
func (a *GoogleDriveAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindGoogleDrive, Err: ErrNotConnected}
	}

	var f driveFile
	metaURL := a.baseURL + "/files/" + url.PathEscape(ref) + "?fields=id,name,mimeType,size"
	if err := a.getJSON(ctx, sess, metaURL, &f); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindGoogleDrive, Err: err}
	}
	if f.MimeType == driveFolderMIME {
		return nil, &Error{Op: "resolve", Kind: KindGoogleDrive, Err: ErrNotFound}
	}

	size := f.sizeBytes()
	if f.Size == "" {
		size = SizeUnknown
	}
	mediaURL := a.baseURL + "/files/" + url.PathEscape(ref) + "?alt=media"

	return &StreamDescriptor{
		Variant: StreamDirect,
		Name:    f.Name,
		Size:    size,
		Open: func(ctx context.Context, start, end int64) (io.ReadCloser, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStream, err)
			}
			if start > 0 || end >= 0 {
				req.Header.Set("Range", rangeHeader(start, end))
			}
			resp, err := sess.client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStream, err)
			}
			switch resp.StatusCode {
			case http.StatusPartialContent:
				return resp.Body, nil
			case http.StatusOK:
				// An upstream that ignores Range replies 200 with the whole
				// file; trim locally so the caller still sees exact bytes.
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
				return nil, fmt.Errorf("%w: upstream status %d", ErrStream, resp.StatusCode)
			}
		},
	}, nil
}

// Disconnect implements Adapter.
func (a *GoogleDriveAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}
