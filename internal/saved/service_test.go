package saved

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		failOn:  make(map[string]bool),
	}
}

func (f *fakeBlobStore) Upload(_ context.Context, path, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[path] {
		return errors.New("upload rejected")
	}
	f.objects[path] = body
	return nil
}

func (f *fakeBlobStore) Download(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[path]
	if !ok {
		return nil, errors.New("object missing")
	}
	return body, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[path] {
		return errors.New("delete rejected")
	}
	delete(f.objects, path)
	return nil
}

type failingStore struct {
	Store
}

func (f failingStore) Insert(context.Context, *Project) error {
	return errors.New("insert rejected")
}

// newBackend serves the minimal command surface Save/Restore touch.
func newBackend(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/command/core/get-csrf-token":
			w.Write([]byte(`{"token":"tok"}`))
		case r.URL.Path == "/command/core/import-project":
			w.Header().Set("Location", "/project?project=777")
			w.WriteHeader(http.StatusFound)
		case r.URL.Path == "/command/core/get-all-project-metadata":
			w.Write([]byte(`{"projects":{}}`))
		default: // export-project/<stem>
			w.Write(archive)
		}
	}))
}

func newTestService(t *testing.T, backendURL string, store Store, blobs *fakeBlobStore) (*Service, registry.Store) {
	t.Helper()
	reg := registry.NewMemoryStore()
	client := refine.NewClient(backendURL, "secret")
	return NewService(store, blobs, client, reg, 10<<20), reg
}

func TestService_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	archive := []byte("tar-gz-bytes")
	backend := newBackend(t, archive)
	defer backend.Close()

	blobs := newFakeBlobStore()
	svc, reg := newTestService(t, backend.URL, NewMemoryStore(), blobs)
	user := auth.User{ID: "user-a"}

	require.NoError(t, reg.Register(ctx, "55", "user-a", "live"))

	project, err := svc.Save(ctx, user, SaveRequest{
		Name:            "Sales Data",
		RefineProjectID: "55",
	}, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "user-a/"+project.ID+"/project.tar.gz", project.ArchivePath)
	assert.Equal(t, int64(len(archive)), project.SizeBytes)
	assert.Equal(t, archive, blobs.objects[project.ArchivePath])

	result, err := svc.Restore(ctx, user, project.ID, "", http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "777", result.ProjectID)
	assert.Equal(t, project.ID, result.RestoredFrom)

	owns, err := reg.BelongsTo(ctx, "777", "user-a")
	require.NoError(t, err)
	assert.True(t, owns)
}

func TestService_SaveRejectsForeignProject(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, []byte("x"))
	defer backend.Close()

	svc, reg := newTestService(t, backend.URL, NewMemoryStore(), newFakeBlobStore())
	require.NoError(t, reg.Register(ctx, "55", "someone-else", ""))

	_, err := svc.Save(ctx, auth.User{ID: "user-a"}, SaveRequest{
		Name:            "x",
		RefineProjectID: "55",
	}, http.Header{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
}

func TestService_SaveValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "http://unreachable.invalid", NewMemoryStore(), newFakeBlobStore())
	user := auth.User{ID: "user-a"}

	_, err := svc.Save(ctx, user, SaveRequest{RefineProjectID: "1"}, http.Header{})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	_, err = svc.Save(ctx, user, SaveRequest{Name: "x"}, http.Header{})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	_, err = svc.Save(ctx, user, SaveRequest{Name: "x", RefineProjectID: "abc"}, http.Header{})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestService_SaveCompensatesOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, []byte("tar-gz"))
	defer backend.Close()

	blobs := newFakeBlobStore()
	svc, reg := newTestService(t, backend.URL, failingStore{NewMemoryStore()}, blobs)
	require.NoError(t, reg.Register(ctx, "55", "user-a", ""))

	_, err := svc.Save(ctx, auth.User{ID: "user-a"}, SaveRequest{
		Name:            "x",
		RefineProjectID: "55",
	}, http.Header{})
	require.Error(t, err)
	assert.Empty(t, blobs.objects, "archive blob must not outlive a failed save")
}

func TestService_DeleteCollectsWarnings(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, []byte("tar-gz"))
	defer backend.Close()

	blobs := newFakeBlobStore()
	store := NewMemoryStore()
	svc, reg := newTestService(t, backend.URL, store, blobs)
	user := auth.User{ID: "user-a"}
	require.NoError(t, reg.Register(ctx, "55", "user-a", ""))

	project, err := svc.Save(ctx, user, SaveRequest{Name: "x", RefineProjectID: "55"}, http.Header{})
	require.NoError(t, err)

	blobs.failOn[project.ArchivePath] = true
	warnings, err := svc.Delete(ctx, user, project.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "archive")

	// Metadata row is gone regardless of the blob failure.
	_, err = svc.Get(ctx, user, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteUnknown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "http://unreachable.invalid", NewMemoryStore(), newFakeBlobStore())

	_, err := svc.Delete(ctx, auth.User{ID: "user-a"}, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFileComponent(t *testing.T) {
	assert.Equal(t, "Sales-Data-2025", SanitizeFileComponent("  Sales Data 2025 "))
	assert.Equal(t, "ab_c.d-e", SanitizeFileComponent("a/b_c.d-e"))
	assert.Equal(t, "project", SanitizeFileComponent("///"))
	assert.Equal(t, "project", SanitizeFileComponent(""))
}

func TestGenerateProjectName(t *testing.T) {
	name := GenerateProjectName("user-a")
	assert.True(t, len(name) > len("user-a_"))
	assert.Contains(t, name, "user-a_")
	assert.NotEqual(t, name, GenerateProjectName("user-a"))
}
