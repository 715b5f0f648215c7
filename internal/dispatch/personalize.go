package dispatch

import (
	"regexp"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// signatureSeparator goes between the personalized body and the signature.
const signatureSeparator = "<br><br>"

// MergeFields returns the recipient's fields plus a lower-cased copy of
// every key and a guaranteed "email" key.
func MergeFields(r domain.Recipient) map[string]string {
	fields := make(map[string]string, len(r.Fields)*2+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	for k, v := range r.Fields {
		lower := strings.ToLower(k)
		if _, exists := fields[lower]; !exists {
			fields[lower] = v
		}
	}
	if _, ok := fields["email"]; !ok {
		fields["email"] = r.Address
	}
	return fields
}

// Personalize replaces {{key}} tokens. The exact key is tried first, then
// its lower-cased form. Unknown tokens are left verbatim.
func Personalize(tmpl string, fields map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		m := placeholderRe.FindStringSubmatch(token)
		key := m[1]
		if v, ok := fields[key]; ok {
			return v
		}
		if v, ok := fields[strings.ToLower(key)]; ok {
			return v
		}
		return token
	})
}

// AppendSignature adds the signature after the body. It is applied after
// personalization so placeholders inside a signature are never expanded.
func AppendSignature(body, signature string) string {
	if strings.TrimSpace(signature) == "" {
		return body
	}
	return body + signatureSeparator + signature
}

// HasPlaceholders reports whether any template needs per-recipient rendering.
func HasPlaceholders(templates ...string) bool {
	for _, t := range templates {
		if strings.Contains(t, "{{") {
			return true
		}
	}
	return false
}
