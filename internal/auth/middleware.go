package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

const (
	ctxUserID      = "user_id"
	ctxUserEmail   = "user_email"
	ctxAccessToken = "access_token"
)

// RequireUser authenticates the request and stores the verified identity
// in the gin context. Requests without a valid credential are rejected.
func RequireUser(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authenticate(c, verifier)
		if err != nil {
			apierr.Respond(c, err)
			c.Abort()
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// RequireUserOrAnon behaves like RequireUser, but when allowAnon is set it
// downgrades a missing/rejected credential to the fallback dev identity
// instead of failing. Used by the UI proxy and the upload path only.
// Page navigations by an unauthenticated browser redirect to loginURL
// rather than receiving a JSON error.
func RequireUserOrAnon(verifier Verifier, allowAnon bool, fallbackUserID, loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authenticate(c, verifier)
		if err != nil {
			if allowAnon && apierr.StatusOf(err) == http.StatusUnauthorized {
				setUser(c, &User{ID: fallbackUserID})
				c.Next()
				return
			}
			if apierr.StatusOf(err) == http.StatusUnauthorized && isPageNavigation(c.Request) {
				c.Redirect(http.StatusFound, loginURL)
				c.Abort()
				return
			}
			apierr.Respond(c, err)
			c.Abort()
			return
		}
		setUser(c, user)
		c.Next()
	}
}

func authenticate(c *gin.Context, verifier Verifier) (*User, error) {
	token := ResolveToken(c.Request)
	if token == "" {
		return nil, apierr.Unauthorized("missing access token")
	}
	return verifier.Verify(c.Request.Context(), token)
}

func setUser(c *gin.Context, user *User) {
	c.Set(ctxUserID, user.ID)
	c.Set(ctxUserEmail, user.Email)
	c.Set(ctxAccessToken, user.AccessToken)
}

// CurrentUser returns the identity stored by the middleware.
func CurrentUser(c *gin.Context) User {
	return User{
		ID:          c.GetString(ctxUserID),
		Email:       c.GetString(ctxUserEmail),
		AccessToken: c.GetString(ctxAccessToken),
	}
}

// isPageNavigation distinguishes browser page loads from background/AJAX
// requests so the unauthenticated UI proxy can redirect to login instead
// of returning JSON.
func isPageNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
