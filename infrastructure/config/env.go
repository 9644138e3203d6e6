package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	domainconfig "github.com/felixgeelhaar/parley/domain/config"
)

var (
	// ${VAR}, ${VAR:-default}, ${VAR:?error message}
	bracketPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)
	// $VAR
	simplePattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// envExpander expands environment variable references in config text.
type envExpander struct {
	// strict fails if a referenced variable is not set.
	strict bool
	// missing tracks unresolved references for the error message.
	missing []string
}

// Expand substitutes environment variables in the input string.
// Supported patterns:
//   - ${VAR} - the value of VAR
//   - ${VAR:-default} - VAR, or "default" when unset or empty
//   - ${VAR:?error message} - fails when VAR is unset or empty
//   - $VAR - bare expansion
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil

	result := bracketPattern.ReplaceAllStringFunc(input, e.expandBracket)
	result = simplePattern.ReplaceAllStringFunc(result, func(match string) string {
		return e.lookup(match[1:])
	})

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return result, nil
}

func (e *envExpander) expandBracket(match string) string {
	inner := match[2 : len(match)-1]
	name, modifier, hasModifier := strings.Cut(inner, ":")
	value, exists := os.LookupEnv(name)

	if !hasModifier {
		return e.lookup(name)
	}
	switch {
	case strings.HasPrefix(modifier, "-"):
		if !exists || value == "" {
			return modifier[1:]
		}
	case strings.HasPrefix(modifier, "?"):
		if !exists || value == "" {
			e.missing = append(e.missing, fmt.Sprintf("%s: %s", name, modifier[1:]))
			return match
		}
	}
	return value
}

// lookup resolves a plain reference with no modifier.
func (e *envExpander) lookup(name string) string {
	value, exists := os.LookupEnv(name)
	if !exists {
		if e.strict {
			e.missing = append(e.missing, name)
		}
		return ""
	}
	return value
}

// ExpandEnv expands environment variables, leaving missing ones empty.
func ExpandEnv(input string) string {
	e := &envExpander{strict: false}
	result, _ := e.Expand(input)
	return result
}

// ExpandEnvStrict expands environment variables and errors on missing ones.
func ExpandEnvStrict(input string) (string, error) {
	e := &envExpander{strict: true}
	return e.Expand(input)
}
