package refine

import (
	"strings"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

// Backend command names the restricted proxy is willing to forward.
var allowedCommands = map[string]struct{}{
	"get-all-project-metadata": {},
	"get-project-metadata":     {},
	"get-rows":                 {},
	"get-columns":              {},
	"apply-operations":         {},
	"get-models":               {},
	"compute-facets":           {},
	"export-rows":              {},
	"delete-project":           {},
	"get-csrf-token":           {},
}

// Commands that operate on a single project and therefore require the
// caller to own it.
var projectRequiredCommands = map[string]struct{}{
	"get-project-metadata": {},
	"get-rows":             {},
	"get-columns":          {},
	"apply-operations":     {},
	"get-models":           {},
	"compute-facets":       {},
	"export-rows":          {},
	"delete-project":       {},
}

// ResolveCommand maps request path segments to a logical backend command
// name: the third segment under the fixed command/core namespace,
// otherwise the final non-empty segment.
func ResolveCommand(segments []string) (string, error) {
	normalized := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) == 0 {
		return "", apierr.New(404, "Missing command path")
	}
	if len(normalized) >= 3 && normalized[0] == "command" && normalized[1] == "core" {
		return normalized[2], nil
	}
	return normalized[len(normalized)-1], nil
}

// SplitCommandPath turns a gin wildcard parameter into path segments.
func SplitCommandPath(wildcard string) []string {
	return strings.Split(strings.Trim(wildcard, "/"), "/")
}

func AssertAllowedCommand(command string) error {
	if _, ok := allowedCommands[command]; !ok {
		return apierr.Forbidden("Command not allowed: " + command)
	}
	return nil
}

func RequiresProjectOwnership(command string) bool {
	_, ok := projectRequiredCommands[command]
	return ok
}
