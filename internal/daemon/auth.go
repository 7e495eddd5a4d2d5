package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	tokenQueryParam = "access_token"
	tokenCookieName = "pinganalyst_token"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>". Browser
// routes may instead pass ?access_token= once; the token is then kept in a
// cookie so links, the upload form, and the websocket stream keep working.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			if tokenMatches(strings.TrimPrefix(auth, "Bearer "), token) {
				next(w, r)
				return
			}
			writeUnauthorized(w)
			return
		}
		if value := r.URL.Query().Get(tokenQueryParam); value != "" && tokenMatches(value, token) {
			http.SetCookie(w, &http.Cookie{
				Name:     tokenCookieName,
				Value:    value,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			next(w, r)
			return
		}
		if cookie, err := r.Cookie(tokenCookieName); err == nil && tokenMatches(cookie.Value, token) {
			next(w, r)
			return
		}
		writeUnauthorized(w)
	}
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeUnauthorized(w http.ResponseWriter) {
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}
