package api

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/server/auth"
)

const userIDKey ctxKey = "userID"

// sessionAuth requires a valid token in the session cookie and stores its
// user in the request context.
func sessionAuth(secret []byte, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(common.SessionCookieName)
			if err != nil || c.Value == "" {
				writeError(w, http.StatusUnauthorized, "missing session")
				return
			}
			userID, err := auth.GetUserIDFromToken(c.Value, secret)
			if err != nil {
				log.Debug(r.Context(), "session rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserID returns the authenticated user of a request, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
