package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches the secret shapes this system handles and might
// leak into log/event/error strings: webhook HMAC secrets and signature
// digests, gateway API keys, bearer tokens on outbound calls, and
// credentials embedded in bus websocket URLs. Each pattern carries its own
// replacement template so prefixes and URL structure survive redaction.
var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// key=value secrets: webhook_secret, API keys, auth tokens
	{
		regexp.MustCompile(`(?i)(webhook[_-]?secret|api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)(\s*[:=]\s*"?)[A-Za-z0-9_\-./+=]{8,}("?)`),
		`${1}${2}` + redactedPlaceholder + `${3}`,
	},
	// Bearer tokens in Authorization headers
	{
		regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9_\-./+=]{16,}`),
		`${1}` + redactedPlaceholder,
	},
	// Webhook signature digests (sha256=<hex>). The digest is not the
	// secret, but a logged digest next to its payload invites offline
	// guessing of the secret.
	{
		regexp.MustCompile(`(?i)(sha256=)[0-9a-f]{64}`),
		`${1}` + redactedPlaceholder,
	},
	// Credentials in bus relay URLs: ws://user:pass@host
	{
		regexp.MustCompile(`(?i)((?:wss?|https?)://)[^/@\s]+:[^/@\s]+@`),
		`${1}` + redactedPlaceholder + `@`,
	},
	// UUID-shaped tokens after auth-related prefixes
	{
		regexp.MustCompile(`(?i)(token|secret)(\s*[:=]\s*"?)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}("?)`),
		`${1}${2}` + redactedPlaceholder + `${3}`,
	},
}

// Redact replaces secret-bearing patterns in the input string with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range secretPatterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}

// RedactEnvValue checks if a key name looks secret and returns redacted value if so.
func RedactEnvValue(key, value string) string {
	keyLower := strings.ToLower(key)
	sensitiveKeys := []string{"api_key", "apikey", "secret", "token", "password", "credential", "signature", "hmac"}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return redactedPlaceholder
		}
	}
	return value
}
