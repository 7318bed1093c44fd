package config

import (
	"os"
	"regexp"
	"strings"
)

// ${VAR} or ${VAR:-default}
var variableRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// interpolate resolves every ${VAR} reference in value against the process
// environment. Resolution happens once, at load time, so downstream code
// only ever sees plain strings.
func interpolate(value, field string) (string, error) {
	var firstErr error
	resolved := variableRe.ReplaceAllStringFunc(value, func(match string) string {
		groups := variableRe.FindStringSubmatch(match)
		name := groups[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if def, ok := strings.CutPrefix(groups[2], ":-"); ok {
			return def
		}
		if firstErr == nil {
			firstErr = &UnresolvedVariableError{Variable: name, Field: field}
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return resolved, nil
}
