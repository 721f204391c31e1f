package telemetry

import "regexp"

var scrubPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(\w+://)[^@/\s]+@`), "$1[REDACTED]@"},
	{regexp.MustCompile(`(\w+://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`(?i)(password|passwd|token|api[_-]?key|secret|dsn)([=:]\s*)\S+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`[0-9a-fA-F]{32,}`), "[API_KEY_REDACTED]"},
}

// ScrubMessage removes credentials, query strings, IPv4 addresses and long
// hex keys from a message.
func ScrubMessage(message string) string {
	for _, p := range scrubPatterns {
		message = p.re.ReplaceAllString(message, p.repl)
	}
	return message
}
