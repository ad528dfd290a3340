package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that working-copy
// and event-multiplexer logs can be aggregated and queried the same way.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Working-copy metadata
	// ========================================================================
	KeyWCRoot     = "wc_root"    // Absolute path of the working-copy root
	KeyWCID       = "wc_id"      // Surrogate id of the working-copy root
	KeyPath       = "path"       // Local relpath
	KeySrcPath    = "src_path"   // Source relpath of a copy or move
	KeyDstPath    = "dst_path"   // Destination relpath of a copy or move
	KeyMovedTo    = "moved_to"   // Move destination recorded on a delete
	KeyOpDepth    = "op_depth"   // Operation depth of a node row
	KeyPresence   = "presence"   // Raw presence of a node row
	KeyStatus     = "status"     // Composite node status
	KeyKind       = "kind"       // Node kind: file, dir, symlink
	KeyRevision   = "revision"   // Repository revision
	KeyReposRoot  = "repos_root" // Repository root URL
	KeyChecksum   = "checksum"   // Pristine checksum
	KeyLevels     = "levels"     // Working-copy lock depth (-1 = infinity)
	KeyLockOwner  = "lock_owner" // Working-copy lock owner id
	KeyWorkItemID = "work_id"    // Work queue item id
	KeyRows       = "rows"       // Rows affected by a statement
	KeyBackend    = "backend"    // Storage or pristine backend name

	// ========================================================================
	// Event multiplexer
	// ========================================================================
	KeyInstance = "kq"       // Multiplexer instance id
	KeyIdent    = "ident"    // Event source identifier
	KeyFilter   = "filter"   // Filter kind name
	KeyFlags    = "flags"    // Registration flags
	KeyFFlags   = "fflags"   // Filter-specific flags
	KeyData     = "data"     // Filter-specific data
	KeyEvents   = "events"   // Events delivered by a scan
	KeyPID      = "pid"      // Process id
	KeyInterval = "interval" // Timer interval

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Operation name
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Error code name
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Path returns a slog.Attr for a local relpath
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OpDepth returns a slog.Attr for an operation depth
func OpDepth(d int) slog.Attr {
	return slog.Int(KeyOpDepth, d)
}

// Revision returns a slog.Attr for a repository revision
func Revision(rev int64) slog.Attr {
	return slog.Int64(KeyRevision, rev)
}

// Ident returns a slog.Attr for an event source identifier
func Ident(id uint64) slog.Attr {
	return slog.Uint64(KeyIdent, id)
}

// Filter returns a slog.Attr for a filter kind name
func Filter(name string) slog.Attr {
	return slog.String(KeyFilter, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
