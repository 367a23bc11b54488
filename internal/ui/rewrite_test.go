package ui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteLocation(t *testing.T) {
	backend := "http://refine:3333"

	assert.Equal(t, "/openrefine/project?project=7", RewriteLocation("/project?project=7", backend))
	assert.Equal(t, "/openrefine/project?project=7", RewriteLocation("http://refine:3333/project?project=7", backend))
	assert.Equal(t, "/openrefine/", RewriteLocation("/", backend))
	assert.Empty(t, RewriteLocation("", backend))
}

func TestRewriteLocation_Idempotent(t *testing.T) {
	backend := "http://refine:3333"
	once := RewriteLocation("/project?project=7", backend)
	assert.Equal(t, once, RewriteLocation(once, backend))
}

func TestRewriteLocation_ForeignHostUntouched(t *testing.T) {
	assert.Equal(t, "https://example.com/page", RewriteLocation("https://example.com/page", "http://refine:3333"))
}

func TestRewriteLocation_KeepsQueryAndFragment(t *testing.T) {
	got := RewriteLocation("/project?project=7&ui=new#view", "http://refine:3333")
	assert.Equal(t, "/openrefine/project?project=7&ui=new#view", got)
}

func TestIsDocumentResponse(t *testing.T) {
	doc := []byte("<!DOCTYPE html><html><head></head><body></body></html>")
	fragment := []byte("<div>partial</div>")

	pageReq := httptest.NewRequest(http.MethodGet, "/openrefine/", nil)
	assert.True(t, IsDocumentResponse(pageReq, "text/html; charset=utf-8", doc))
	assert.False(t, IsDocumentResponse(pageReq, "text/html", fragment))
	assert.False(t, IsDocumentResponse(pageReq, "application/json", doc))

	xhrReq := httptest.NewRequest(http.MethodGet, "/openrefine/", nil)
	xhrReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.False(t, IsDocumentResponse(xhrReq, "text/html", doc))
}

func TestRewriteDocument_InjectsBaseAndScripts(t *testing.T) {
	doc := []byte(`<!DOCTYPE html><html><head><title>x</title></head><body><a href="/">home</a></body></html>`)
	out := string(RewriteDocument(doc))

	assert.True(t, strings.Contains(out, `<head><base href="/openrefine/">`))
	assert.True(t, strings.Contains(out, `id="gw-hash-guard"`))
	assert.True(t, strings.Contains(out, `id="gw-history-keeper"`))
	assert.True(t, strings.Contains(out, `href="/openrefine/"`))
	assert.False(t, strings.Contains(out, `href="/"`))
	// Scripts land before </head>, not at the document tail.
	assert.Less(t, strings.Index(out, `id="gw-hash-guard"`), strings.Index(out, "</head>")+len("</head>"))
}

func TestRewriteDocument_Idempotent(t *testing.T) {
	doc := []byte(`<!DOCTYPE html><html><head></head><body><a href="/">home</a></body></html>`)
	once := RewriteDocument(doc)
	twice := RewriteDocument(once)
	assert.Equal(t, string(once), string(twice))
}

func TestRewriteDocument_RespectsExistingBase(t *testing.T) {
	doc := []byte(`<html><head><base href="/custom/"></head><body></body></html>`)
	out := string(RewriteDocument(doc))
	assert.Equal(t, 1, strings.Count(out, "<base "))
	assert.True(t, strings.Contains(out, `href="/custom/"`))
}

func TestRewriteDocument_NoHead(t *testing.T) {
	doc := []byte(`<html><body>minimal</body></html>`)
	out := string(RewriteDocument(doc))
	assert.True(t, strings.Contains(out, `id="gw-hash-guard"`))
}
