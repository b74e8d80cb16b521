package dynval

import (
	"fmt"
	"os"
	"regexp"

	"github.com/orgloop/engine/internal/orgerr"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SubstituteEnv resolves ${VAR_NAME} references in raw against the process
// environment, per spec.md §6. Missing variables produce a ConfigInvalid
// naming the variable, rather than silently substituting an empty string.
func SubstituteEnv(raw string) (string, error) {
	var firstErr error
	out := envRefPattern.ReplaceAllStringFunc(raw, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := envRefPattern.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			firstErr = orgerr.New(orgerr.ConfigInvalid, "config", name,
				fmt.Errorf("environment variable %q is not set", name))
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
