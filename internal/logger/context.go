package logger

import "context"

type scopeKey struct{}

// LogContext is the set of fields prepended to every record logged through
// a *Ctx function. A working-copy transaction fills the wc fields, a
// multiplexer scan fills Instance.
type LogContext struct {
	Operation string
	WCRoot    string
	WCID      int64
	Instance  uint64
	TraceID   string
	SpanID    string
}

// WithContext binds lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, scopeKey{}, lc)
}

// FromContext returns the LogContext bound to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(scopeKey{}).(*LogContext)
	return lc
}

// ForWC scopes op to the working copy rooted at root.
func ForWC(op, root string, wcID int64) *LogContext {
	return &LogContext{Operation: op, WCRoot: root, WCID: wcID}
}

// ForInstance scopes op to multiplexer instance id.
func ForInstance(op string, id uint64) *LogContext {
	return &LogContext{Operation: op, Instance: id}
}

// Traced returns a copy of lc carrying the given trace and span ids.
func (lc *LogContext) Traced(traceID, spanID string) *LogContext {
	if lc == nil {
		return nil
	}
	out := *lc
	out.TraceID, out.SpanID = traceID, spanID
	return &out
}

// args flattens the set fields into key/value pairs. Zero ids are omitted;
// wc_id 0 never names a stored root.
func (lc *LogContext) args() []any {
	var out []any
	for _, kv := range [...][2]string{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyOperation, lc.Operation},
		{KeyWCRoot, lc.WCRoot},
	} {
		if kv[1] != "" {
			out = append(out, kv[0], kv[1])
		}
	}
	if lc.WCID != 0 {
		out = append(out, KeyWCID, lc.WCID)
	}
	if lc.Instance != 0 {
		out = append(out, KeyInstance, lc.Instance)
	}
	return out
}
