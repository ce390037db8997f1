package shared

import "context"

type contextKey string

const userIDKey contextKey = "warden.user_id"

// ContextWithUserID stores the resolved caller identity on the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the caller identity placed by the transport layer.
// The second return is false when no identity was resolved.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
