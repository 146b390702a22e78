package middleware

import "context"

// principal is what Auth learns from a verified access token.
type principal struct {
	userID    string
	accessID  string
	activated bool
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	s, _ := ctx.Value(principalKey{}).(principal)
	return s
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

// AccessIDFromContext returns the session id (token jti) of the authenticated request.
func AccessIDFromContext(ctx context.Context) string { return principalFrom(ctx).accessID }

func ActivatedFromContext(ctx context.Context) bool { return principalFrom(ctx).activated }

func WithSession(ctx context.Context, userID, accessID string, activated bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, principal{userID: userID, accessID: accessID, activated: activated})
}
