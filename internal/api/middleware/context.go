package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const userKey contextKey = "user"

// SetUser stores the authenticated user identity (the token subject).
func SetUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func GetUser(r *http.Request) (string, bool) {
	user, ok := r.Context().Value(userKey).(string)
	return user, ok && user != ""
}
