package secret

import (
	"net/url"
	"regexp"
)

// The placeholder must survive url.URL re-encoding unescaped, so it is
// plain letters rather than asterisks.
const placeholder = "xxxxx"

// Connection URLs embedded in driver errors do not always survive
// url.Parse, so a pattern pass backs up the structured one.
var urlCredentials = regexp.MustCompile(`(postgres(?:ql)?://[^:/@\s]+):([^@\s]+)@`)

// Redact replaces the password segment of any connection URL found in s
// with a placeholder. Safe to call on arbitrary error text; non-URL input
// comes back unchanged.
func Redact(s string) string {
	out := urlCredentials.ReplaceAllString(s, "${1}:"+placeholder+"@")
	return out
}

// RedactURL redacts a single connection string, preferring structured
// parsing so userinfo without a password is left alone.
func RedactURL(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return Redact(dsn)
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), placeholder)
	}
	return u.String()
}

// RedactErr formats an error with credentials stripped. Returns "" for nil.
func RedactErr(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}
