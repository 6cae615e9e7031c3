package token

import (
	"net/http"
	"strings"
)

const (
	CookieName     = "auth-token"
	FlagCookieName = "user-logged-in"
	QueryParam     = "token"
)

// Extractor pulls a raw token out of a request.
type Extractor func(r *http.Request) string

// FromCookie reads the named cookie.
func FromCookie(name string) Extractor {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

// FromBearer reads an "Authorization: Bearer <token>" header.
func FromBearer() Extractor {
	return func(r *http.Request) string {
		h := r.Header.Get("Authorization")
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
}

// FromQuery reads a URL query parameter. Streaming connections that cannot
// set headers or cookies rely on it.
func FromQuery(param string) Extractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// Chain returns the first non-empty result.
func Chain(extractors ...Extractor) Extractor {
	return func(r *http.Request) string {
		for _, e := range extractors {
			if v := e(r); v != "" {
				return v
			}
		}
		return ""
	}
}

// DefaultExtractor applies cookie, then bearer header, then query parameter.
func DefaultExtractor() Extractor {
	return Chain(FromCookie(CookieName), FromBearer(), FromQuery(QueryParam))
}
