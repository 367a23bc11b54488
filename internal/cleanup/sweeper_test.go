package cleanup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
)

type deleteRecorder struct {
	mu      sync.Mutex
	deleted []string
	failIDs map[string]bool
}

func (d *deleteRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/command/core/get-csrf-token":
			w.Write([]byte(`{"token":"tok"}`))
		case "/command/core/delete-project":
			id := r.URL.Query().Get("project")
			d.mu.Lock()
			fail := d.failIDs[id]
			if !fail {
				d.deleted = append(d.deleted, id)
			}
			d.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"code":"ok"}`))
		}
	}
}

func newSweepFixture(t *testing.T, rec *deleteRecorder) (*Sweeper, registry.Store) {
	t.Helper()
	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	reg := registry.NewMemoryStore()
	client := refine.NewClient(server.URL, "secret")
	return NewSweeper(reg, client, 24*time.Hour), reg
}

func TestSweeper_DeletesStaleOnly(t *testing.T) {
	ctx := context.Background()
	rec := &deleteRecorder{failIDs: map[string]bool{}}
	sweeper, reg := newSweepFixture(t, rec)

	// Registered now; nothing is older than the 24h horizon yet.
	require.NoError(t, reg.Register(ctx, "1", "user-a", ""))
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 0, Deleted: 0, Failed: 0}, report)

	sweeper.maxAge = 0 // everything is stale against a zero horizon
	report, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 1, Deleted: 1, Failed: 0}, report)
	assert.Equal(t, []string{"1"}, rec.deleted)

	stale, err := reg.ListStale(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestSweeper_BackendFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	rec := &deleteRecorder{failIDs: map[string]bool{"2": true}}
	sweeper, reg := newSweepFixture(t, rec)
	sweeper.maxAge = 0

	require.NoError(t, reg.Register(ctx, "1", "user-a", ""))
	require.NoError(t, reg.Register(ctx, "2", "user-a", ""))

	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 2, Deleted: 1, Failed: 1}, report)

	// The failed entry stays for the next sweep to retry.
	stale, err := reg.ListStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, stale)
}

func TestCleanupHandler_RequiresCronSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &deleteRecorder{failIDs: map[string]bool{}}
	sweeper, _ := newSweepFixture(t, rec)

	r := gin.New()
	NewHandler(sweeper, "cron-secret").Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"checked":0,"deleted":0,"failed":0}`, w.Body.String())
}

func TestCleanupHandler_EmptySecretAlwaysRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &deleteRecorder{failIDs: map[string]bool{}}
	sweeper, _ := newSweepFixture(t, rec)

	r := gin.New()
	NewHandler(sweeper, "").Register(r)

	req := httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
