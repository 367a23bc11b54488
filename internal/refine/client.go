package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

const (
	// SecretHeader proves gateway origin to the backend.
	SecretHeader = "x-openrefine-proxy-secret"
	// CSRFHeader carries the backend's anti-forgery token.
	CSRFHeader = "x-token"

	// ArchiveSuffix is the backend's native project-archive extension.
	ArchiveSuffix = ".openrefine.tar.gz"

	defaultTimeout = 30 * time.Second
	// transferTimeout covers export/import, which move whole archives.
	transferTimeout = 90 * time.Second
)

// Client talks to the data-wrangling backend's command API. Redirects are
// never followed automatically; they must be observed and rewritten.
type Client struct {
	baseURL       string
	sharedSecret  string
	defaultClient *http.Client
	longClient    *http.Client
}

func NewClient(baseURL, sharedSecret string) *Client {
	noRedirect := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sharedSecret: sharedSecret,
		defaultClient: &http.Client{
			Timeout:       defaultTimeout,
			CheckRedirect: noRedirect,
		},
		longClient: &http.Client{
			Timeout:       transferTimeout,
			CheckRedirect: noRedirect,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SharedSecret() string {
	return c.sharedSecret
}

// BuildURL joins a backend path with the inbound request's query string.
func (c *Client) BuildURL(path, rawQuery string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// BuildProxyHeaders assembles the restricted outbound header set: the
// shared secret, accept/content-type, any caller-supplied CSRF token,
// and the allow-listed backend cookies. Identity-provider cookies never
// reach the backend.
func (c *Client) BuildProxyHeaders(r *http.Request) http.Header {
	headers := make(http.Header)
	headers.Set(SecretHeader, c.sharedSecret)

	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = "*/*"
	}
	headers.Set("Accept", accept)

	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	if token := r.Header.Get(CSRFHeader); token != "" {
		headers.Set(CSRFHeader, token)
	}
	if filtered := SanitizeCookieHeader(r.Header.Get("Cookie")); filtered != "" {
		headers.Set("Cookie", filtered)
	}

	return headers
}

// ServiceHeaders returns a minimal outbound header set for gateway-origin
// calls that are not relaying a client request (cleanup, cloud sync).
func (c *Client) ServiceHeaders() http.Header {
	headers := make(http.Header)
	headers.Set(SecretHeader, c.sharedSecret)
	headers.Set("Accept", "*/*")
	return headers
}

// Do forwards a request to the backend without following redirects.
// GET/HEAD requests carry no body.
func (c *Client) Do(ctx context.Context, method, targetURL string, headers http.Header, body io.Reader) (*http.Response, error) {
	if method == http.MethodGet || method == http.MethodHead {
		body = nil
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("create backend request: %w", err)
	}
	if headers != nil {
		req.Header = headers.Clone()
	}
	resp, err := c.defaultClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream("backend request failed: " + err.Error())
	}
	return resp, nil
}

// EnsureCSRF guarantees a CSRF header is present before any mutating call.
// Already-present tokens are left alone. A missing token in the backend's
// response fails the whole request; there is no retry.
func (c *Client) EnsureCSRF(ctx context.Context, headers http.Header, method string) error {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	if headers.Get(CSRFHeader) != "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/command/core/get-csrf-token", nil)
	if err != nil {
		return fmt.Errorf("create csrf request: %w", err)
	}
	req.Header.Set(SecretHeader, c.sharedSecret)
	if cookie := headers.Get("Cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.defaultClient.Do(req)
	if err != nil {
		return apierr.Upstream("Failed to fetch CSRF token: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.Newf(502, "Failed to fetch CSRF token: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Upstream("Failed to read CSRF token response")
	}
	token := parseCSRFToken(raw)
	if token == "" {
		return apierr.Upstream("CSRF token response was empty")
	}
	headers.Set(CSRFHeader, token)

	// Adopt the backend session cookie so the subsequent proxied call
	// stays on the same backend session as the token it carries.
	if setCookie := resp.Header.Get("Set-Cookie"); setCookie != "" && headers.Get("Cookie") == "" {
		headers.Set("Cookie", strings.SplitN(setCookie, ";", 2)[0])
	}

	return nil
}

// parseCSRFToken accepts either a JSON object with a token field or a
// bare, possibly quote-wrapped, string.
func parseCSRFToken(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Token != "" {
		return parsed.Token
	}

	return strings.Trim(trimmed, `"`)
}

// ProjectMetadata is the subset of the backend's per-project metadata the
// gateway needs.
type ProjectMetadata struct {
	Name string `json:"name"`
}

// AllProjectMetadata fetches the backend's full project listing.
func (c *Client) AllProjectMetadata(ctx context.Context, headers http.Header) (map[string]ProjectMetadata, error) {
	metaHeaders := headers.Clone()
	if metaHeaders == nil {
		metaHeaders = make(http.Header)
	}
	metaHeaders.Del("Content-Type")

	resp, err := c.Do(ctx, http.MethodGet, c.baseURL+"/command/core/get-all-project-metadata", metaHeaders, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Newf(502, "get-all-project-metadata failed with status %d", resp.StatusCode)
	}

	var body struct {
		Projects map[string]ProjectMetadata `json:"projects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apierr.Upstream("unparseable project metadata: " + err.Error())
	}
	if body.Projects == nil {
		return map[string]ProjectMetadata{}, nil
	}
	return body.Projects, nil
}

// FindProjectIDByName scans the backend's metadata listing for an exact
// name match. Returns "" (no error) when absent or when the listing
// itself cannot be fetched — callers treat this as one more fallback.
func (c *Client) FindProjectIDByName(ctx context.Context, headers http.Header, projectName string) string {
	projects, err := c.AllProjectMetadata(ctx, headers)
	if err != nil {
		return ""
	}
	for projectID, meta := range projects {
		if meta.Name == projectName {
			return projectID
		}
	}
	return ""
}

// ExportProject invokes the backend's export command and returns the raw
// archive bytes, following the backend's download redirect once, manually.
func (c *Client) ExportProject(ctx context.Context, headers http.Header, projectID, fileStem string) ([]byte, error) {
	exportURL := c.baseURL + "/command/core/export-project/" + url.PathEscape(fileStem+ArchiveSuffix)

	exportHeaders := headers.Clone()
	exportHeaders.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	if err := c.EnsureCSRF(ctx, exportHeaders, http.MethodPost); err != nil {
		return nil, err
	}

	payload := url.Values{}
	payload.Set("project", projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exportURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create export request: %w", err)
	}
	req.Header = exportHeaders.Clone()

	resp, err := c.longClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream("export-project request failed: " + err.Error())
	}
	defer resp.Body.Close()

	if location := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && location != "" {
		downloadURL, err := url.Parse(location)
		if err != nil {
			return nil, apierr.Upstream("unparseable export redirect: " + location)
		}
		if !downloadURL.IsAbs() {
			base, _ := url.Parse(c.baseURL)
			downloadURL = base.ResolveReference(downloadURL)
		}

		downloadHeaders := exportHeaders.Clone()
		downloadHeaders.Del("Content-Type")
		downloadReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create export download request: %w", err)
		}
		downloadReq.Header = downloadHeaders

		resp.Body.Close()
		resp, err = c.longClient.Do(downloadReq)
		if err != nil {
			return nil, apierr.Upstream("export download failed: " + err.Error())
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apierr.Newf(resp.StatusCode, "export-project failed: %s", string(reason))
	}

	archive, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Upstream("reading exported archive failed: " + err.Error())
	}
	if len(archive) == 0 {
		return nil, apierr.Upstream("export-project returned empty archive")
	}
	return archive, nil
}

// ImportProject submits an archive to the backend's import command as a
// multipart upload. The caller owns resolving the resulting project id
// from the response.
func (c *Client) ImportProject(ctx context.Context, headers http.Header, projectName string, archive []byte) (*http.Response, error) {
	importHeaders := headers.Clone()
	if importHeaders == nil {
		importHeaders = make(http.Header)
	}
	if err := c.EnsureCSRF(ctx, importHeaders, http.MethodPost); err != nil {
		return nil, err
	}

	importURL := c.baseURL + "/command/core/import-project"
	if token := importHeaders.Get(CSRFHeader); token != "" {
		importURL += "?csrf_token=" + url.QueryEscape(token)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("project-file", projectName+ArchiveSuffix)
	if err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, fmt.Errorf("write multipart archive: %w", err)
	}
	if err := writer.WriteField("project-name", projectName); err != nil {
		return nil, fmt.Errorf("write multipart name field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	importHeaders.Set("Content-Type", writer.FormDataContentType())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, importURL, &form)
	if err != nil {
		return nil, fmt.Errorf("create import request: %w", err)
	}
	req.Header = importHeaders

	resp, err := c.longClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream("import-project request failed: " + err.Error())
	}
	return resp, nil
}

// DeleteProject removes a live backend project.
func (c *Client) DeleteProject(ctx context.Context, headers http.Header, projectID string) error {
	deleteHeaders := headers.Clone()
	if deleteHeaders == nil {
		deleteHeaders = make(http.Header)
	}
	if err := c.EnsureCSRF(ctx, deleteHeaders, http.MethodPost); err != nil {
		return err
	}

	deleteURL := c.baseURL + "/command/core/delete-project?project=" + url.QueryEscape(projectID)
	resp, err := c.Do(ctx, http.MethodPost, deleteURL, deleteHeaders, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierr.Newf(resp.StatusCode, "delete-project failed: %s", string(reason))
	}
	return nil
}
