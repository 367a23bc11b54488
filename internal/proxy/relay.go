package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Headers that must not be copied from a backend response to the client.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
	"Content-Encoding":    {},
}

// RelayResponse copies a backend response to the client, dropping
// hop-by-hop headers. The body is streamed.
func RelayResponse(c *gin.Context, resp *http.Response) {
	CopyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// The client went away mid-stream; nothing sensible to send.
		_ = c.Error(err)
	}
}

// CopyResponseHeaders copies response headers minus the hop-by-hop set.
func CopyResponseHeaders(dst http.Header, src http.Header) {
	for name, values := range src {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
