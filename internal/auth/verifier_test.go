package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

func TestSupabaseVerifier_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "anon-key", r.Header.Get("apikey"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"user-1","email":"u@example.com"}`))
	}))
	defer server.Close()

	verifier := NewSupabaseVerifier(server.URL, "anon-key")
	user, err := verifier.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "u@example.com", user.Email)
	assert.Equal(t, "tok", user.AccessToken)
}

func TestSupabaseVerifier_RejectedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	verifier := NewSupabaseVerifier(server.URL, "anon-key")
	_, err := verifier.Verify(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
}

func TestSupabaseVerifier_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"u@example.com"}`))
	}))
	defer server.Close()

	verifier := NewSupabaseVerifier(server.URL, "anon-key")
	_, err := verifier.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
}

func TestSupabaseVerifier_EmptyToken(t *testing.T) {
	verifier := NewSupabaseVerifier("http://unreachable.invalid", "anon-key")
	_, err := verifier.Verify(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
}
