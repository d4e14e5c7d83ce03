package kit

import "context"

type contextKey string

const (
	RequestIDKey contextKey = "kit_request_id"
	TransportKey contextKey = "kit_transport" // "stdio", "http"
	ToolKey      contextKey = "kit_tool"
	ProfileKey   contextKey = "kit_profile"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "stdio"
}

func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}
func GetTool(ctx context.Context) string {
	v, _ := ctx.Value(ToolKey).(string)
	return v
}

func WithProfile(ctx context.Context, profile string) context.Context {
	return context.WithValue(ctx, ProfileKey, profile)
}
func GetProfile(ctx context.Context) string {
	v, _ := ctx.Value(ProfileKey).(string)
	return v
}
