package refine

import (
	"encoding/json"
	"math"
	"regexp"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

// The backend reports a newly created project id in whichever of several
// places its code path happens to reach: a redirect Location, the final
// URL, or a JSON/HTML body. Extraction is an ordered list of pure
// strategies; the first hit wins and exhaustion is a named upstream
// failure, never a silent miss — a silently unregistered project becomes
// permanently inaccessible to its owner.

var (
	queryIDPattern = regexp.MustCompile(`project=(\d+)`)
	pathIDPattern  = regexp.MustCompile(`/project\?project=(\d+)`)
	keyIDPattern   = regexp.MustCompile(`"project(?:ID|Id)?"\s*:\s*"?(\d+)"?`)
	digitsPattern  = regexp.MustCompile(`^\d+$`)
)

// ProjectIDFromLocation extracts a project id from a Location header or
// any raw string carrying the project=<digits> convention.
func ProjectIDFromLocation(raw string) string {
	if raw == "" {
		return ""
	}
	if m := queryIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

// ProjectIDFromBody extracts a project id from a response body, trying the
// query-string convention, known JSON field names, a path-shaped
// occurrence, and finally a loose quoted-key match.
func ProjectIDFromBody(raw []byte) string {
	body := string(raw)
	if id := ProjectIDFromLocation(body); id != "" {
		return id
	}
	if id := projectIDFromJSON(raw); id != "" {
		return id
	}
	if m := pathIDPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	if m := keyIDPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

func projectIDFromJSON(raw []byte) string {
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ""
	}
	for _, key := range []string{"project", "projectID", "projectId"} {
		value, ok := parsed[key]
		if !ok {
			continue
		}

		var num float64
		if err := json.Unmarshal(value, &num); err == nil && num == math.Trunc(num) {
			var asString json.Number
			if err := json.Unmarshal(value, &asString); err == nil {
				return asString.String()
			}
		}

		var str string
		if err := json.Unmarshal(value, &str); err == nil {
			if digitsPattern.MatchString(str) {
				return str
			}
			if nested := ProjectIDFromLocation(str); nested != "" {
				return nested
			}
		}
	}
	return ""
}

// ExtractInputs carries every signal available for id extraction so a
// failure can report what was inspected.
type ExtractInputs struct {
	Status   int
	Location string
	FinalURL string
	Body     []byte
}

// ExtractProjectID runs the fallback chain over the available signals.
func ExtractProjectID(in ExtractInputs) (string, error) {
	if id := ProjectIDFromLocation(in.Location); id != "" {
		return id, nil
	}
	if id := ProjectIDFromLocation(in.FinalURL); id != "" {
		return id, nil
	}
	if len(in.Body) > 0 {
		if id := ProjectIDFromBody(in.Body); id != "" {
			return id, nil
		}
	}

	location := in.Location
	if location == "" {
		location = "none"
	}
	return "", apierr.Newf(502, "Could not parse project id (status=%d, location=%s, finalUrl=%s)",
		in.Status, location, in.FinalURL)
}
