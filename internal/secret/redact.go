package secret

import "strings"

// redactedToken replaces every resolved secret occurrence in output text.
const redactedToken = "[REDACTED]"

// Sanitize replaces every non-empty string in secrets with [REDACTED],
// byte-identical, in list order. Empty strings are skipped — redacting an
// empty string would match (and corrupt) every position in the output.
func Sanitize(output string, secrets []string) string {
	result := output
	for _, s := range secrets {
		if s == "" {
			continue
		}
		result = strings.ReplaceAll(result, s, redactedToken)
	}
	return result
}
