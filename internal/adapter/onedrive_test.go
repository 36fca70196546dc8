package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGraphServer(t *testing.T, token, downloadURL string) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/me/drive":
			json.NewEncoder(w).Encode(map[string]any{"id": "drive1", "driveType": "personal"})
		case "/me/drive/root/children":
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"id": "item-folder", "name": "Podcasts", "folder": map[string]any{"childCount": 3}},
					{"id": "item-song", "name": "tune.m4a", "size": 4096},
				},
			})
		case "/me/drive/items/item-folder/children":
			// Second page exercised via nextLink.
			json.NewEncoder(w).Encode(map[string]any{
				"@odata.nextLink": ts.URL + "/me/drive/items/item-folder/children2",
				"value": []map[string]any{
					{"id": "ep1", "name": "episode1.mp3", "size": 100},
				},
			})
		case "/me/drive/items/item-folder/children2":
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"id": "ep2", "name": "episode2.mp3", "size": 200},
				},
			})
		case "/me/drive/items/item-song":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "item-song", "name": "tune.m4a", "size": 4096,
				"@microsoft.graph.downloadUrl": downloadURL,
			})
		case "/me/drive/items/item-folder":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "item-folder", "name": "Podcasts", "folder": map[string]any{"childCount": 3},
			})
		default:
			http.Error(w, `{"error":{"code":"itemNotFound"}}`, http.StatusNotFound)
		}
	}))
	return ts
}

func onedriveFixture(t *testing.T) (*OneDriveAdapter, string) {
	t.Helper()
	ts := fakeGraphServer(t, "graph-tok", "https://content.example.com/dl/item-song?tempauth=x")
	t.Cleanup(ts.Close)

	a := NewOneDrive()
	a.baseURL = ts.URL
	id, err := a.Connect(context.Background(), Credentials{Token: "graph-tok"})
	require.NoError(t, err)
	return a, id
}

func TestOneDriveConnectRejectsBadToken(t *testing.T) {
	ts := fakeGraphServer(t, "graph-tok", "")
	defer ts.Close()

	a := NewOneDrive()
	a.baseURL = ts.URL
	_, err := a.Connect(context.Background(), Credentials{Token: "bad"})
	assert.True(t, IsAuth(err))
}

func TestOneDriveListRoot(t *testing.T) {
	a, id := onedriveFixture(t)

	entries, err := a.List(context.Background(), id, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Podcasts", entries[0].Name)
	assert.Equal(t, EntryDirectory, entries[0].Kind)
	assert.Equal(t, "item-folder", entries[0].Ref)
	assert.Equal(t, "tune.m4a", entries[1].Name)
	assert.Equal(t, int64(4096), entries[1].SizeBytes)
	assert.True(t, entries[1].IsPlayableAudio)
}

func TestOneDriveListFollowsNextLink(t *testing.T) {
	a, id := onedriveFixture(t)

	entries, err := a.List(context.Background(), id, "item-folder")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "episode1.mp3", entries[0].Name)
	assert.Equal(t, "episode2.mp3", entries[1].Name)
}

func TestOneDriveResolveIsRedirect(t *testing.T) {
	a, id := onedriveFixture(t)

	desc, err := a.Resolve(context.Background(), id, "item-song")
	require.NoError(t, err)
	assert.Equal(t, StreamRedirect, desc.Variant)
	assert.Equal(t, "tune.m4a", desc.Name)
	assert.Equal(t, int64(4096), desc.Size)
	assert.Equal(t, "https://content.example.com/dl/item-song?tempauth=x", desc.TargetURL)
	assert.Nil(t, desc.Open)
}

func TestOneDriveResolveFolderIsNotFound(t *testing.T) {
	a, id := onedriveFixture(t)
	_, err := a.Resolve(context.Background(), id, "item-folder")
	assert.True(t, IsNotFound(err))
}

func TestOneDriveResolveMissing(t *testing.T) {
	a, id := onedriveFixture(t)
	_, err := a.Resolve(context.Background(), id, "item-gone")
	assert.True(t, IsNotFound(err))
}
