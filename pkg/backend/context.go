package backend

import "context"

type requestContextKey string

const requestContextOriginKey requestContextKey = "servermark.origin"

// WithOrigin tags commands issued under ctx with the component that triggered
// them ("tray", "cli", ...). The backend only uses it for logging.
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, requestContextOriginKey, origin)
}

func originFromContext(ctx context.Context) string {
	v := ctx.Value(requestContextOriginKey)
	s, _ := v.(string)
	return s
}
