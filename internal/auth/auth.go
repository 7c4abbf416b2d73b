package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "Login Required"

// Basic checks HTTP basic credentials against one configured user.
//
// The comparison is plain string equality with no lockout or rate limiting.
// The panel is meant for a trusted LAN with a single operator.
type Basic struct {
	User string
	Pass string

	// OnDeny, when set, is called for every rejected request.
	OnDeny func(r *http.Request)
}

func New(user, pass string) *Basic {
	return &Basic{User: user, Pass: pass}
}

// ParseHeader decodes an Authorization header of the form
// "Basic base64(user:pass)". ok is false on any malformed input.
func ParseHeader(header string) (user, pass string, ok bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "basic") {
		return "", "", false
	}
	payload, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil || !utf8.Valid(payload) {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(payload), ":")
	if !ok {
		return "", "", false
	}
	return user, pass, true
}

// Check reports whether header carries the configured credentials.
func (b *Basic) Check(header string) bool {
	if header == "" {
		return false
	}
	user, pass, ok := ParseHeader(header)
	if !ok {
		return false
	}
	return user == b.User && pass == b.Pass
}

// Require runs next only for authenticated requests; others get a 401 with a
// basic challenge so browsers prompt for credentials.
func (b *Basic) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.Check(r.Header.Get("Authorization")) {
			if b.OnDeny != nil {
				b.OnDeny(r)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
