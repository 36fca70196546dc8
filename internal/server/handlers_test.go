package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/markb/cloudtune/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLibrary creates a scan root with an album folder and two tracks.
func testLibrary(t *testing.T) (string, []byte) {
	t.Helper()
	root := t.TempDir()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 199)
	}

	require.NoError(t, os.Mkdir(filepath.Join(root, "Album"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "track.mp3"), data, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Album", "b.flac"), []byte("flac"), 0644))

	return root, data
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := New(Config{JWTSecret: "test-secret"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// connectLocal runs the connect handshake against the local backend and
// returns the client id.
func connectLocal(t *testing.T, ts *httptest.Server, root string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/local/connect", map[string]string{"root": root})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success  bool   `json:"success"`
		ClientID string `json:"clientId"`
	}
	decodeJSON(t, resp, &body)
	require.True(t, body.Success)
	require.NotEmpty(t, body.ClientID)
	return body.ClientID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBackendsList(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/backends")
	require.NoError(t, err)

	var body struct {
		Success  bool     `json:"success"`
		Backends []string `json:"backends"`
	}
	decodeJSON(t, resp, &body)
	assert.True(t, body.Success)
	assert.Contains(t, body.Backends, "local")
	assert.Contains(t, body.Backends, "webdav")
	assert.Contains(t, body.Backends, "dropbox")
}

func TestUnknownBackend(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/ftp/connect", map[string]string{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestConnectListStreamDisconnect(t *testing.T) {
	root, data := testLibrary(t)
	ts := newTestServer(t)

	clientID := connectLocal(t, ts, root)

	// List the root: directory first, then the track.
	resp, err := http.Get(fmt.Sprintf("%s/api/local/list?clientId=%s", ts.URL, clientID))
	require.NoError(t, err)
	var listing struct {
		Success bool            `json:"success"`
		Items   []adapter.Entry `json:"items"`
	}
	decodeJSON(t, resp, &listing)
	require.True(t, listing.Success)
	require.Len(t, listing.Items, 2)
	assert.Equal(t, "Album", listing.Items[0].Name)
	assert.Equal(t, adapter.EntryDirectory, listing.Items[0].Kind)
	assert.Equal(t, "track.mp3", listing.Items[1].Name)
	assert.True(t, listing.Items[1].IsPlayableAudio)

	// Stream an interior range.
	req, _ := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/local/stream?clientId=%s&path=/track.mp3", ts.URL, clientID), nil)
	req.Header.Set("Range", "bytes=1000-1999")
	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, streamResp.StatusCode)
	assert.Equal(t, "bytes 1000-1999/4096", streamResp.Header.Get("Content-Range"))
	assert.Equal(t, "audio/mpeg", streamResp.Header.Get("Content-Type"))
	got, _ := io.ReadAll(streamResp.Body)
	assert.Equal(t, data[1000:2000], got)

	// Disconnect, then the session is gone.
	resp = postJSON(t, ts.URL+"/api/local/disconnect", map[string]string{"clientId": clientID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/api/local/list?clientId=%s", ts.URL, clientID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestStreamFullBodyWithoutRange(t *testing.T) {
	root, data := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	resp, err := http.Get(fmt.Sprintf("%s/api/local/stream?clientId=%s&path=/track.mp3", ts.URL, clientID))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, data, got)
}

func TestStreamMalformedRangeGetsFullBody(t *testing.T) {
	root, data := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	req, _ := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/local/stream?clientId=%s&path=/track.mp3", ts.URL, clientID), nil)
	req.Header.Set("Range", "bytes=oops")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := io.ReadAll(resp.Body)
	assert.Len(t, got, len(data))
}

func TestStreamMissingFile(t *testing.T) {
	root, _ := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	resp, err := http.Get(fmt.Sprintf("%s/api/local/stream?clientId=%s&path=/gone.mp3", ts.URL, clientID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamRequiresSessionOrToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/local/stream?path=/track.mp3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/local/stream?clientId=local-stale&path=/track.mp3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/local/connect", map[string]string{"root": "/definitely/not/here"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeJSON(t, resp, &body)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestSignedStreamURL(t *testing.T) {
	root, data := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	resp := postJSON(t, ts.URL+"/api/local/sign", map[string]any{
		"clientId": clientID, "ref": "/track.mp3", "expiresIn": 120,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signed struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		URL     string `json:"url"`
	}
	decodeJSON(t, resp, &signed)
	require.True(t, signed.Success)
	require.NotEmpty(t, signed.Token)

	// The token alone grants the stream, no clientId needed.
	streamResp, err := http.Get(ts.URL + signed.URL)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	assert.Equal(t, http.StatusOK, streamResp.StatusCode)
	got, _ := io.ReadAll(streamResp.Body)
	assert.Equal(t, data, got)
}

func TestSignedTokenBoundToBackend(t *testing.T) {
	root, _ := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	resp := postJSON(t, ts.URL+"/api/local/sign", map[string]any{
		"clientId": clientID, "ref": "/track.mp3",
	})
	var signed struct {
		Token string `json:"token"`
	}
	decodeJSON(t, resp, &signed)

	// Same token replayed against another backend kind is refused.
	streamResp, err := http.Get(ts.URL + "/api/webdav/stream?token=" + signed.Token)
	require.NoError(t, err)
	streamResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, streamResp.StatusCode)
}

func TestStreamInvalidToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/local/stream?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisconnectIdempotent(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/api/local/disconnect", map[string]string{"clientId": "local-never-existed"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestCORSHeadersOnStream(t *testing.T) {
	root, _ := testLibrary(t)
	ts := newTestServer(t)
	clientID := connectLocal(t, ts, root)

	req, _ := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/local/stream?clientId=%s&path=/track.mp3", ts.URL, clientID), nil)
	req.Header.Set("Origin", "http://player.example")
	req.Header.Set("Range", "bytes=0-99")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Content-Range")
}
