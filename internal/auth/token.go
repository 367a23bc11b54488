package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The session cookie written by the Supabase client library comes in
// several shapes: a bare JWT, a JSON session object, a base64url-wrapped
// JSON blob prefixed with "base64-", and any of those split across
// chunked cookies named <base>.0, <base>.1, ...

const sharedAuthCookie = "sb-dataviz-auth-token"

var jwtPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

var chunkSuffixPattern = regexp.MustCompile(`\.\d+$`)

// ResolveToken extracts a caller credential from the request, preferring
// the Authorization header over session cookies. Returns "" when no
// credential is present; that is not an error.
func ResolveToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	return tokenFromCookies(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return ""
	}
	return parts[1]
}

func tokenFromCookies(r *http.Request) string {
	cookies := cookieMap(r)
	if len(cookies) == 0 {
		return ""
	}

	if direct, ok := cookies["sb-access-token"]; ok && direct != "" {
		if decoded, err := url.QueryUnescape(direct); err == nil {
			return decoded
		}
		return direct
	}

	baseNames := map[string]struct{}{sharedAuthCookie: {}}
	for name := range cookies {
		if !strings.HasPrefix(name, "sb-") {
			continue
		}
		normalized := chunkSuffixPattern.ReplaceAllString(name, "")
		if strings.HasSuffix(normalized, "-auth-token") {
			baseNames[normalized] = struct{}{}
		}
	}

	for baseName := range baseNames {
		raw := readChunkedCookie(cookies, baseName)
		if raw == "" {
			continue
		}
		if token := parseAuthCookieValue(raw); token != "" {
			return token
		}
	}

	return ""
}

func cookieMap(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, header := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(header, ";") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			eq := strings.Index(trimmed, "=")
			if eq <= 0 {
				continue
			}
			out[strings.TrimSpace(trimmed[:eq])] = trimmed[eq+1:]
		}
	}
	return out
}

// readChunkedCookie returns the cookie value for baseName, reassembling
// chunked cookies (<base>.0, <base>.1, ...) by ascending numeric suffix.
// Header iteration order does not matter.
func readChunkedCookie(cookies map[string]string, baseName string) string {
	if direct, ok := cookies[baseName]; ok && direct != "" {
		return direct
	}

	type chunk struct {
		index int
		value string
	}
	var chunks []chunk
	prefix := baseName + "."
	for name, value := range cookies {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		index, err := strconv.Atoi(name[len(prefix):])
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk{index: index, value: value})
	}
	if len(chunks) == 0 {
		return ""
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.value)
	}
	return b.String()
}

func parseAuthCookieValue(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}

	if jwtPattern.MatchString(decoded) {
		return decoded
	}

	candidates := []string{decoded}
	if rest, ok := strings.CutPrefix(decoded, "base64-"); ok {
		if blob, err := decodeBase64URL(rest); err == nil {
			candidates = append(candidates, blob)
		}
	}

	for _, candidate := range candidates {
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		if token := accessTokenFrom(parsed); token != "" {
			return token
		}
	}

	return ""
}

func decodeBase64URL(value string) (string, error) {
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(value)
	if pad := len(normalized) % 4; pad != 0 {
		normalized += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// accessTokenFrom searches a decoded session value for a token-shaped
// string: a direct access_token field, then the session wrappers the
// client library nests it under, recursively through arrays.
func accessTokenFrom(value any) string {
	switch v := value.(type) {
	case string:
		if jwtPattern.MatchString(v) {
			return v
		}
	case []any:
		for _, item := range v {
			if token := accessTokenFrom(item); token != "" {
				return token
			}
		}
	case map[string]any:
		if direct, ok := v["access_token"].(string); ok && direct != "" {
			return direct
		}
		for _, key := range []string{"currentSession", "session", "data"} {
			if nested, ok := v[key]; ok {
				if token := accessTokenFrom(nested); token != "" {
					return token
				}
			}
		}
	}
	return ""
}
