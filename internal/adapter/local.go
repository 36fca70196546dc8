package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/markb/cloudtune/internal/log"
	"github.com/markb/cloudtune/internal/session"
)

// LocalAdapter scans a directory tree on the server's own filesystem.
// Refs are slash-separated paths relative to the session's root; every
// resolve yields a direct descriptor backed by os.Open.
type LocalAdapter struct {
	sessions *session.Registry[*localSession]
}

type localSession struct {
	root string // absolute scan root, fixed at connect
}

// NewLocal creates the local filesystem adapter.
func NewLocal() *LocalAdapter {
	return &LocalAdapter{sessions: session.NewRegistry[*localSession](string(KindLocal))}
}

// Kind implements Adapter.
func (a *LocalAdapter) Kind() Kind { return KindLocal }

// Connect validates that the root exists and is a readable directory.
func (a *LocalAdapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Root == "" {
		return "", &Error{Op: "connect", Kind: KindLocal, Err: fmt.Errorf("%w: root directory required", ErrAuth)}
	}

	root, err := filepath.Abs(creds.Root)
	if err != nil {
		return "", &Error{Op: "connect", Kind: KindLocal, Err: fmt.Errorf("%w: invalid root: %v", ErrAuth, err)}
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", &Error{Op: "connect", Kind: KindLocal, Err: fmt.Errorf("%w: %s is not a readable directory", ErrAuth, root)}
	}

	// Probe: one root listing, mirrors the remote adapters' probe call.
	if _, err := os.ReadDir(root); err != nil {
		return "", &Error{Op: "connect", Kind: KindLocal, Err: fmt.Errorf("%w: %v", ErrAuth, err)}
	}

	return a.sessions.Add(&localSession{root: root}), nil
}

// validateRef rejects refs that could escape the scan root.
func validateLocalRef(ref string) error {
	if strings.ContainsRune(ref, 0) {
		return ErrNotFound
	}
	cleaned := path.Clean("/" + ref)
	if strings.HasPrefix(cleaned, "/..") {
		return ErrNotFound
	}
	return nil
}

// fullPath maps a slash ref onto the session root.
func (s *localSession) fullPath(ref string) string {
	cleaned := path.Clean("/" + ref)
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
}

// List implements Adapter. Unreadable entries are skipped and logged, never
// fatal for the listing.
func (a *LocalAdapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindLocal, Err: ErrNotConnected}
	}
	if ref == "" {
		ref = "/"
	}
	if err := validateLocalRef(ref); err != nil {
		return nil, &Error{Op: "list", Kind: KindLocal, Err: err}
	}

	dirEntries, err := os.ReadDir(sess.fullPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Op: "list", Kind: KindLocal, Err: ErrNotFound}
		}
		return nil, &Error{Op: "list", Kind: KindLocal, Err: &RemoteError{Message: err.Error()}}
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			log.Debug("skipping unreadable entry", "name", de.Name(), "error", err.Error())
			continue
		}
		childRef := path.Join("/", ref, de.Name())
		if de.IsDir() {
			entries = append(entries, Entry{
				Name: de.Name(),
				Ref:  childRef,
				Kind: EntryDirectory,
			})
			continue
		}
		entries = append(entries, Entry{
			Name:            de.Name(),
			Ref:             childRef,
			Kind:            EntryFile,
			SizeBytes:       info.Size(),
			IsPlayableAudio: IsPlayableAudio(de.Name()),
		})
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter. Always a direct descriptor.
func (a *LocalAdapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindLocal, Err: ErrNotConnected}
	}
	if err := validateLocalRef(ref); err != nil {
		return nil, &Error{Op: "resolve", Kind: KindLocal, Err: err}
	}

	full := sess.fullPath(ref)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, &Error{Op: "resolve", Kind: KindLocal, Err: ErrNotFound}
	}

	return &StreamDescriptor{
		Variant: StreamDirect,
		Name:    path.Base(ref),
		Size:    info.Size(),
		Open: func(ctx context.Context, start, end int64) (io.ReadCloser, error) {
			f, err := os.Open(full)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStream, err)
			}
			if start > 0 {
				if _, err := f.Seek(start, io.SeekStart); err != nil {
					f.Close()
					return nil, fmt.Errorf("%w: %v", ErrStream, err)
				}
			}
			if end < 0 {
				return f, nil
			}
			return &sectionReadCloser{
				Reader: io.LimitReader(f, end-start+1),
				closer: f,
			}, nil
		},
	}, nil
}

// Disconnect implements Adapter.
func (a *LocalAdapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}

// sectionReadCloser bounds a reader while keeping the underlying file's
// Close reachable.
type sectionReadCloser struct {
	io.Reader
	closer io.Closer
}

func (s *sectionReadCloser) Close() error { return s.closer.Close() }
