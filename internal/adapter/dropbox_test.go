package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDropboxServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/users/get_current_account":
			json.NewEncoder(w).Encode(map[string]any{"account_id": "dbid:abc"})
		case "/files/list_folder":
			if body["path"] == "" {
				json.NewEncoder(w).Encode(map[string]any{
					"entries": []map[string]any{
						{".tag": "file", "name": "idea.wav", "path_display": "/idea.wav", "size": 321},
						{".tag": "folder", "name": "Demos", "path_display": "/Demos"},
					},
					"cursor":   "cur1",
					"has_more": true,
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"entries": []any{}, "has_more": false})
		case "/files/list_folder/continue":
			require.Equal(t, "cur1", body["cursor"])
			json.NewEncoder(w).Encode(map[string]any{
				"entries": []map[string]any{
					{".tag": "file", "name": "final.mp3", "path_display": "/final.mp3", "size": 999},
				},
				"has_more": false,
			})
		case "/files/get_metadata":
			switch body["path"] {
			case "/idea.wav":
				json.NewEncoder(w).Encode(map[string]any{
					".tag": "file", "name": "idea.wav", "path_display": "/idea.wav", "size": 321,
				})
			case "/Demos":
				json.NewEncoder(w).Encode(map[string]any{".tag": "folder", "name": "Demos"})
			default:
				http.Error(w, `{"error_summary":"path/not_found/..."}`, http.StatusConflict)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func dropboxFixture(t *testing.T) (*DropboxAdapter, string) {
	t.Helper()
	ts := fakeDropboxServer(t, "db-tok")
	t.Cleanup(ts.Close)

	a := NewDropbox()
	a.apiBase = ts.URL
	a.contentBase = ts.URL + "/content"
	id, err := a.Connect(context.Background(), Credentials{Token: "db-tok"})
	require.NoError(t, err)
	return a, id
}

func TestDropboxConnectRejectsBadToken(t *testing.T) {
	ts := fakeDropboxServer(t, "db-tok")
	defer ts.Close()

	a := NewDropbox()
	a.apiBase = ts.URL
	_, err := a.Connect(context.Background(), Credentials{Token: "bad"})
	assert.True(t, IsAuth(err))
}

func TestDropboxListPaginates(t *testing.T) {
	a, id := dropboxFixture(t)

	entries, err := a.List(context.Background(), id, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Demos", entries[0].Name)
	assert.Equal(t, EntryDirectory, entries[0].Kind)
	assert.Equal(t, "final.mp3", entries[1].Name)
	assert.Equal(t, "idea.wav", entries[2].Name)
	assert.Equal(t, "/idea.wav", entries[2].Ref)
	assert.Equal(t, int64(321), entries[2].SizeBytes)
}

func TestDropboxResolveIsProxyPost(t *testing.T) {
	a, id := dropboxFixture(t)

	desc, err := a.Resolve(context.Background(), id, "/idea.wav")
	require.NoError(t, err)

	assert.Equal(t, StreamProxy, desc.Variant)
	assert.Equal(t, "idea.wav", desc.Name)
	assert.Equal(t, int64(321), desc.Size)
	assert.Equal(t, http.MethodPost, desc.Method)
	assert.True(t, strings.HasSuffix(desc.TargetURL, "/content/files/download"))
	assert.Equal(t, "Bearer db-tok", desc.ForwardHeader.Get("Authorization"))
	assert.JSONEq(t, `{"path":"/idea.wav"}`, desc.ForwardHeader.Get("Dropbox-API-Arg"))
}

func TestDropboxResolveFolderIsNotFound(t *testing.T) {
	a, id := dropboxFixture(t)
	_, err := a.Resolve(context.Background(), id, "/Demos")
	assert.True(t, IsNotFound(err))
}

func TestDropboxResolveMissingPath(t *testing.T) {
	a, id := dropboxFixture(t)
	_, err := a.Resolve(context.Background(), id, "/gone.mp3")
	assert.True(t, IsNotFound(err))
}

func TestDropboxAPIArgEscapesNonASCII(t *testing.T) {
	arg := dropboxAPIArg("/音楽/track.mp3")

	// Header values must be pure ASCII.
	for _, r := range arg {
		assert.LessOrEqual(t, r, rune(0x7e))
	}
	assert.Contains(t, arg, `\u97f3`)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(arg), &decoded))
	assert.Equal(t, "/音楽/track.mp3", decoded["path"])
}
