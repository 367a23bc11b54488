package ui

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/proxy"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
)

const maxDocumentBytes = 10 << 20

// Headers never forwarded to the backend. Accept-Encoding is stripped so
// document responses arrive uncompressed and can be rewritten; the
// browser's cookies are replaced by the allow-listed subset.
var droppedRequestHeaders = map[string]struct{}{
	"Host":            {},
	"Connection":      {},
	"Content-Length":  {},
	"Accept-Encoding": {},
	"Cookie":          {},
}

// Handler proxies the backend's embedded UI and its full command surface.
// The UI route forwards near-complete browser requests (minus the dropped
// set above); the command route sends only the restricted backend header
// set and brokers CSRF tokens, like the /api proxy.
type Handler struct {
	client      *refine.Client
	registry    registry.Store
	defaultLang string
}

func NewHandler(client *refine.Client, reg registry.Store, defaultLang string) *Handler {
	return &Handler{client: client, registry: reg, defaultLang: defaultLang}
}

// RegisterUI expects a group mounted at PublicPrefix; RegisterCommands
// a group mounted at /command.
func (h *Handler) RegisterUI(rg *gin.RouterGroup) {
	rg.Any("/*path", h.serveUI)
}

func (h *Handler) RegisterCommands(rg *gin.RouterGroup) {
	rg.Any("/*path", h.serveCommand)
}

func (h *Handler) serveUI(c *gin.Context) {
	backendPath := c.Param("path")
	if backendPath == "" {
		backendPath = "/"
	}
	h.forward(c, backendPath, h.buildHeaders(c.Request), nil)
}

// serveCommand relays the UI's own XHR command calls. Only the restricted
// header set reaches the backend; identity-provider credentials stay on
// the gateway side, and mutating calls get a brokered CSRF token. The
// load-language command gets a default language injected when the UI
// sends none, so a fresh browser session comes up in the configured
// locale.
func (h *Handler) serveCommand(c *gin.Context) {
	backendPath := "/command" + c.Param("path")

	var body io.Reader
	if strings.HasSuffix(strings.TrimRight(backendPath, "/"), "/load-language") && c.Request.Method == http.MethodPost {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
		if err != nil {
			apierr.Respond(c, apierr.BadRequest("failed to read request body"))
			return
		}
		body = bytes.NewReader(h.injectLang(raw))
	}

	headers := h.client.BuildProxyHeaders(c.Request)
	if err := h.client.EnsureCSRF(c.Request.Context(), headers, c.Request.Method); err != nil {
		apierr.Respond(c, err)
		return
	}

	h.forward(c, backendPath, headers, body)
}

func (h *Handler) injectLang(raw []byte) []byte {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		values = url.Values{}
	}
	if values.Get("lang") == "" {
		values.Set("lang", h.defaultLang)
	}
	return []byte(values.Encode())
}

func (h *Handler) forward(c *gin.Context, backendPath string, headers http.Header, body io.Reader) {
	user := auth.CurrentUser(c)

	target := h.client.BuildURL(backendPath, c.Request.URL.RawQuery)

	if body == nil {
		body = c.Request.Body
	}
	resp, err := h.client.Do(c.Request.Context(), c.Request.Method, target, headers, body)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		h.relayRedirect(c, resp, user)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			apierr.Respond(c, apierr.Upstream("failed to read backend document"))
			return
		}
		if IsDocumentResponse(c.Request, contentType, doc) {
			doc = RewriteDocument(doc)
		}
		proxy.CopyResponseHeaders(c.Writer.Header(), resp.Header)
		c.Writer.Header().Set("Content-Length", strconv.Itoa(len(doc)))
		c.Data(resp.StatusCode, contentType, doc)
		return
	}

	proxy.RelayResponse(c, resp)
}

// relayRedirect rewrites the backend redirect onto the public prefix and
// registers any project id the redirect reveals, so a project created
// through the raw UI flow is still owned by the creating user.
func (h *Handler) relayRedirect(c *gin.Context, resp *http.Response, user auth.User) {
	location := resp.Header.Get("Location")

	if projectID := refine.ProjectIDFromLocation(location); projectID != "" && user.ID != "" {
		if err := h.registry.Register(c.Request.Context(), projectID, user.ID, ""); err != nil {
			log.Printf("[warn] operation=ui_register project_id=%s user_id=%s error=%v", projectID, user.ID, err)
		}
	}

	proxy.CopyResponseHeaders(c.Writer.Header(), resp.Header)
	if location != "" {
		c.Writer.Header().Set("Location", RewriteLocation(location, h.client.BaseURL()))
	}
	c.Status(resp.StatusCode)
}

func (h *Handler) buildHeaders(r *http.Request) http.Header {
	headers := make(http.Header)
	for name, values := range r.Header {
		if _, drop := droppedRequestHeaders[http.CanonicalHeaderKey(name)]; drop {
			continue
		}
		if http.CanonicalHeaderKey(name) == http.CanonicalHeaderKey(refine.SecretHeader) {
			continue
		}
		for _, value := range values {
			headers.Add(name, value)
		}
	}
	headers.Set(refine.SecretHeader, h.client.SharedSecret())
	if filtered := refine.SanitizeCookieHeader(r.Header.Get("Cookie")); filtered != "" {
		headers.Set("Cookie", filtered)
	}
	return headers
}
