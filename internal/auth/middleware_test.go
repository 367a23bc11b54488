package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

type staticVerifier struct {
	user *User
}

func (v staticVerifier) Verify(_ context.Context, token string) (*User, error) {
	if v.user != nil && token == v.user.AccessToken {
		return v.user, nil
	}
	return nil, apierr.Unauthorized("invalid or expired access token")
}

func TestRequireUser_RejectsMissingCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireUser(staticVerifier{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_StoresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := staticVerifier{user: &User{ID: "user-1", Email: "u@example.com", AccessToken: "tok"}}

	var got User
	r := gin.New()
	r.GET("/", RequireUser(verifier), func(c *gin.Context) {
		got = CurrentUser(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, "u@example.com", got.Email)
	assert.Equal(t, "tok", got.AccessToken)
}

func TestRequireUserOrAnon_FallsBackWhenAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got User
	r := gin.New()
	r.GET("/", RequireUserOrAnon(staticVerifier{}, true, "local-dev-user", "/login"), func(c *gin.Context) {
		got = CurrentUser(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local-dev-user", got.ID)
}

func TestRequireUserOrAnon_PageNavigationRedirects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireUserOrAnon(staticVerifier{}, false, "", "/login"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRequireUserOrAnon_XHRGetsJSONError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireUserOrAnon(staticVerifier{}, false, "", "/login"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
