package api

import (
	"fmt"
	"net/http"
)

func (s *DocSyncApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// identityMiddleware attaches the username from a valid token cookie. A
// missing or invalid token is not an error; the caller falls back to the
// query parameter.
func (s *DocSyncApp) identityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(tokenCookieKey)
		if err != nil || s.signingKey == nil {
			next(w, r)
			return
		}

		username, err := s.extractUsernameFromToken(tokenCookie.Value)
		if err != nil {
			s.log.Printf("ignoring token: %v", err)
			next(w, r)
			return
		}

		next(w, r.WithContext(WithUsername(r.Context(), username)))
	}
}
