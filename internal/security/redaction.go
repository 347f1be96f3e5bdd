// Package security masks personal data in captured payloads before they are
// logged. Reporters hand over phone numbers and names in areas where being
// identified as the source of a mining report carries real risk.
package security

import (
	"regexp"
	"strings"
)

var (
	phoneFieldExpr    = `(?:contact[_-]?phone|phone[_-]?number|phone|msisdn)`
	jsonPhonePattern  = regexp.MustCompile(`(?i)("` + phoneFieldExpr + `"\s*:\s*)"[^"]*"`)
	kvPhonePattern    = regexp.MustCompile(`(?i)(` + phoneFieldExpr + `)\s*[:=]\s*(?:"[^"]*"|'[^']*'|[^\s"'&]+)`)
	barePhonePattern  = regexp.MustCompile(`(?:\+233|0)[ -]?[235][0-9][ -]?[0-9]{3}[ -]?[0-9]{4}`)
	jsonNamePattern   = regexp.MustCompile(`(?i)("reported_by"\s*:\s*)"[^"]*"`)
	secretKeyExpr     = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	jsonSecretPattern = regexp.MustCompile(`(?i)("` + secretKeyExpr + `"\s*:\s*)"(?:[^"\\]|\\.)*"`)
	kvSecretPattern   = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`)
)

// RedactPayload masks reporter phone numbers and secret-looking fields in a
// captured payload so it can be logged.
func RedactPayload(input string) string {
	if input == "" {
		return ""
	}
	out := jsonPhonePattern.ReplaceAllString(input, `${1}"[REDACTED]"`)
	out = kvPhonePattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return "[REDACTED]"
		}
		return match[:idx+1] + "[REDACTED]"
	})
	out = barePhonePattern.ReplaceAllString(out, "[REDACTED]")
	out = jsonSecretPattern.ReplaceAllString(out, `${1}"[REDACTED]"`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return "[REDACTED]"
		}
		return match[:idx+1] + " [REDACTED]"
	})
	return out
}

// RedactReporter additionally masks the reporter name; used when a payload
// leaves the device for anything other than delivery to the incident service.
func RedactReporter(input string) string {
	if input == "" {
		return ""
	}
	return jsonNamePattern.ReplaceAllString(RedactPayload(input), `${1}"[REDACTED]"`)
}
