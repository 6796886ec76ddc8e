package ctxkeys

import "context"

// TraceIDKey 上下文中测试用例追踪 ID 的键
type TraceIDKey struct{}

// WithTraceID 在上下文中附加追踪 ID
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey{}, id)
}

// TraceID 读取上下文中的追踪 ID，不存在时返回空串
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey{}).(string)
	return id
}
