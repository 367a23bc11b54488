package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeCookieHeader(t *testing.T) {
	raw := "JSESSIONID=abc123; sb-dataviz-auth-token=secret; refine.theme=dark; csrf_token=xyz; host=localhost; tracking=1"
	assert.Equal(t,
		"JSESSIONID=abc123; refine.theme=dark; csrf_token=xyz; host=localhost",
		SanitizeCookieHeader(raw))
}

func TestSanitizeCookieHeader_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "jsessionid=1", SanitizeCookieHeader("jsessionid=1"))
	assert.Equal(t, "CSRFToken=2", SanitizeCookieHeader("CSRFToken=2"))
}

func TestSanitizeCookieHeader_NothingSurvives(t *testing.T) {
	assert.Empty(t, SanitizeCookieHeader("sb-access-token=jwt; theme=dark"))
	assert.Empty(t, SanitizeCookieHeader(""))
}

func TestSanitizeCookieHeader_MalformedPairs(t *testing.T) {
	assert.Equal(t, "JSESSIONID=ok", SanitizeCookieHeader("=bad; ;JSESSIONID=ok"))
}
