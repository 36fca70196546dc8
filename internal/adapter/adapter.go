// Package adapter defines the uniform contract every storage integration
// implements: connect with backend-specific credentials, list one directory
// level, resolve a file reference to a stream descriptor, disconnect.
// The server and range proxy only ever speak to this interface; everything
// backend-native (Graph item ids, PROPFIND bodies, presigned URLs, vendor
// cookies) stays behind it.
package adapter

import (
	"context"
	"io"
	"net/http"
)

// Kind identifies a supported backend integration.
type Kind string

const (
	KindLocal       Kind = "local"
	KindWebDAV      Kind = "webdav"
	KindGoogleDrive Kind = "gdrive"
	KindOneDrive    Kind = "onedrive"
	KindDropbox     Kind = "dropbox"
	KindS3          Kind = "s3"
	KindCloud189    Kind = "cloud189"
	KindAList       Kind = "alist"
)

// Kinds lists every supported backend kind.
func Kinds() []Kind {
	return []Kind{
		KindLocal, KindWebDAV, KindGoogleDrive, KindOneDrive,
		KindDropbox, KindS3, KindCloud189, KindAList,
	}
}

// Credentials is the union of fields backends accept on connect.
// Each adapter reads the fields relevant to its authentication scheme and
// ignores the rest; missing required fields fail with ErrAuth.
type Credentials struct {
	URL      string `json:"url,omitempty"`      // webdav/alist base URL, S3 endpoint override
	Username string `json:"username,omitempty"` // webdav basic auth
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`  // OAuth bearer token or alist API token
	Cookie   string `json:"cookie,omitempty"` // vendor drive session cookie
	Root     string `json:"root,omitempty"`   // local scan root directory

	// S3-specific
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	PathStyle       bool   `json:"pathStyle,omitempty"`
}

// EntryKind discriminates listing rows.
type EntryKind string

const (
	EntryFile      EntryKind = "file"
	EntryDirectory EntryKind = "directory"
)

// Entry is one normalized directory-listing row. Ref is the opaque
// backend-specific reference (path or id) usable in subsequent List or
// Resolve calls.
type Entry struct {
	Name            string    `json:"name"`
	Ref             string    `json:"ref"`
	Kind            EntryKind `json:"kind"`
	SizeBytes       int64     `json:"sizeBytes"`
	IsPlayableAudio bool      `json:"isPlayableAudio"`
}

// StreamVariant selects how a resolved file's bytes are delivered.
type StreamVariant int

const (
	// StreamDirect means the adapter itself serves arbitrary byte windows
	// through the descriptor's Open func.
	StreamDirect StreamVariant = iota

	// StreamRedirect means the target URL is pre-authenticated and
	// range-capable; the browser fetches it directly after a 302.
	StreamRedirect

	// StreamProxy means the target URL needs headers the browser cannot
	// supply (cookies, API args), so the server relays the bytes itself.
	StreamProxy
)

// SizeUnknown marks a descriptor whose total size could not be determined.
const SizeUnknown int64 = -1

// OpenFunc produces a reader over [start, end] of a direct stream.
// end < 0 means "to end of file". The caller closes the reader.
type OpenFunc func(ctx context.Context, start, end int64) (io.ReadCloser, error)

// StreamDescriptor is the resolved, backend-agnostic instruction for
// delivering a file's bytes. Exactly one variant is populated; which
// variant a given adapter produces is a fixed property of that backend,
// never negotiated per request.
type StreamDescriptor struct {
	Variant StreamVariant
	Name    string // file name, drives Content-Type selection
	Size    int64  // total bytes, SizeUnknown when the backend does not report it

	// Direct only.
	Open OpenFunc

	// Redirect and proxy.
	TargetURL string

	// Proxy only: headers the upstream fetch must carry, and the request
	// method when the upstream is not a plain GET (Dropbox's content
	// endpoint wants POST).
	ForwardHeader http.Header
	Method        string
}

// Adapter is the uniform backend contract. Implementations must be safe
// for concurrent use; session state is immutable after connect except for
// atomic credential replacement.
type Adapter interface {
	// Kind returns the backend kind this adapter serves.
	Kind() Kind

	// Connect validates credentials with one cheap read-only probe and
	// returns a process-unique session id on success.
	Connect(ctx context.Context, creds Credentials) (string, error)

	// List returns the entries exactly one level below ref, directories
	// first, locale-aware name-ascending within each group. An empty ref
	// addresses the backend root. Per-entry failures are skipped, not
	// propagated.
	List(ctx context.Context, sessionID, ref string) ([]Entry, error)

	// Resolve turns a file ref into a stream descriptor.
	Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error)

	// Disconnect forgets the session. Idempotent, never fails.
	Disconnect(sessionID string)
}
