package logger

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail masks the local part of an address, keeping two characters
// and the domain: "john.doe@example.com" -> "jo***@example.com".
// A display-name form ("John <john@example.com>") is reduced to the address.
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	if lt := strings.LastIndex(email, "<"); lt >= 0 && strings.HasSuffix(email, ">") {
		email = email[lt+1 : len(email)-1]
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 || strings.Contains(email[:at], "@") {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// recipientKey reports whether a field name always carries an address.
func recipientKey(key string) bool {
	key = strings.ToLower(key)
	switch key {
	case "to", "from", "addr":
		return true
	}
	return strings.Contains(key, "email") || strings.Contains(key, "recipient") || strings.Contains(key, "address")
}

// redactValue masks a logged field. Recipient fields are masked whole,
// anything else only where an address appears inside it.
func redactValue(key, val string) string {
	if recipientKey(key) {
		return RedactEmail(val)
	}
	return addressPattern.ReplaceAllStringFunc(val, RedactEmail)
}
