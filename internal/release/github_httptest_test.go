package release

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub is a minimal in-memory GitHub releases API.
type fakeGitHub struct {
	releases map[string]int      // tag -> id
	assets   map[int][]string    // release id -> filenames
	nextID   int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{releases: make(map[string]int), assets: make(map[int][]string), nextID: 100}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	// Handled outside the mux: this pattern and "GET .../releases/{id}/assets"
	// conflict under ServeMux precedence rules and would panic at registration.
	getReleaseByTag := func(w http.ResponseWriter, r *http.Request, tag string) {
		id, ok := f.releases[tag]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "tag_name": tag, "name": tag})
	}

	mux.HandleFunc("POST /repos/example/chatifier/releases", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TagName string `json:"tag_name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.nextID++
		f.releases[body.TagName] = f.nextID
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": f.nextID, "tag_name": body.TagName})
	})

	mux.HandleFunc("GET /repos/example/chatifier/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))
		out := make([]map[string]any, 0)
		for i, name := range f.assets[id] {
			out = append(out, map[string]any{"id": i + 1, "name": name})
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("POST /repos/example/chatifier/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))
		name := r.URL.Query().Get("name")
		for _, existing := range f.assets[id] {
			if existing == name {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
		}
		f.assets[id] = append(f.assets[id], name)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": len(f.assets[id]), "name": name, "size": r.ContentLength})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if tag, ok := strings.CutPrefix(r.URL.Path, "/repos/example/chatifier/releases/tags/"); ok && tag != "" && !strings.Contains(tag, "/") {
				getReleaseByTag(w, r, tag)
				return
			}
		}
		mux.ServeHTTP(w, r)
	})
}

func newTestGitHubPublisher(t *testing.T, apiURL string) *GitHubPublisher {
	t.Helper()
	p, err := NewGitHubPublisher(&cfg.ForgeConfig{
		Type:   cfg.ForgeGitHub,
		APIURL: apiURL,
		Owner:  "example", Repo: "chatifier",
		Auth: &cfg.ForgeAuthConfig{Type: cfg.AuthTypeToken, Token: "test-token"},
	})
	require.NoError(t, err)
	return p
}

func TestGitHubEnsureReleaseCreatesOnce(t *testing.T) {
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := newTestGitHubPublisher(t, srv.URL)
	ctx := context.Background()

	rel1, err := p.EnsureRelease(ctx, "v1.0.0", "notes")
	require.NoError(t, err)

	rel2, err := p.EnsureRelease(ctx, "v1.0.0", "ignored")
	require.NoError(t, err)

	assert.Equal(t, rel1.ID, rel2.ID, "second EnsureRelease must reuse the release")
	assert.Len(t, fake.releases, 1)
}

func TestGitHubAttachAssetAndDuplicate(t *testing.T) {
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := newTestGitHubPublisher(t, srv.URL)
	ctx := context.Background()

	asset, err := p.AttachAsset(ctx, "v1.0.0", "chatifier-linux.zip", []byte("zip-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "chatifier-linux.zip", asset.Name)

	_, err = p.AttachAsset(ctx, "v1.0.0", "chatifier-linux.zip", []byte("zip-bytes"))
	require.Error(t, err)
	assert.True(t, rferrors.IsCategory(err, rferrors.CategoryAlreadyExists),
		"duplicate filename must classify as already_exists, got %v", err)
}

func TestGitHubUnauthorizedMapsToAuthorizationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := newTestGitHubPublisher(t, srv.URL)
	_, err := p.EnsureRelease(context.Background(), "v1.0.0", "")
	require.Error(t, err)
	assert.True(t, rferrors.IsCategory(err, rferrors.CategoryAuthorization))
}
