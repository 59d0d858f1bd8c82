// Package secret implements the placeholder-substitution and output-redaction
// pipeline: the only component in this codebase that ever handles a resolved
// secret's plaintext.
package secret

import (
	"fmt"
	"strings"
)

const (
	openToken  = "{{SECRET:"
	closeToken = "}}"
)

// Resolver resolves a secret name to its plaintext value.
type Resolver func(name string) (string, error)

// ResolvePlaceholders performs a single left-to-right scan of input, splicing
// in the resolver's result for each well-formed `{{SECRET:NAME}}` marker.
// An unterminated opener is left literal and scanning stops there entirely
// (nothing after it is considered for further placeholders), matching the
// reference resolver's single-pass behaviour. Every resolved plaintext is
// appended, in resolution order, to the returned slice for later redaction.
func ResolvePlaceholders(input string, resolve Resolver) (string, []string, error) {
	var out strings.Builder
	var resolved []string

	searchFrom := 0
	for {
		start := strings.Index(input[searchFrom:], openToken)
		if start == -1 {
			out.WriteString(input[searchFrom:])
			break
		}
		absStart := searchFrom + start
		out.WriteString(input[searchFrom:absStart])

		nameStart := absStart + len(openToken)
		closeIdx := strings.Index(input[nameStart:], closeToken)
		if closeIdx == -1 {
			// Unterminated opener: left literal, scanning stops here.
			out.WriteString(input[absStart:])
			break
		}
		absClose := nameStart + closeIdx
		name := input[nameStart:absClose]

		value, err := resolve(name)
		if err != nil {
			return "", nil, fmt.Errorf("resolve secret %q: %w", name, err)
		}

		out.WriteString(value)
		resolved = append(resolved, value)

		searchFrom = absClose + len(closeToken)
	}

	return out.String(), resolved, nil
}
