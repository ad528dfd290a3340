package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys.
const (
	AttrWCRoot    = "wc.root"
	AttrPath      = "wc.path"
	AttrDstPath   = "wc.dst_path"
	AttrOpDepth   = "wc.op_depth"
	AttrRevision  = "wc.revision"
	AttrIsMove    = "wc.is_move"
	AttrBackend   = "pristine.backend"
	AttrChecksum  = "pristine.checksum"
	AttrFilter    = "kevent.filter"
	AttrIdent     = "kevent.ident"
	AttrMaxEvents = "kevent.max_events"
	AttrEvents    = "kevent.events"
)

// Path returns the relpath attribute.
func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

// DstPath returns the destination relpath attribute.
func DstPath(p string) attribute.KeyValue {
	return attribute.String(AttrDstPath, p)
}

// OpDepth returns the op-depth attribute.
func OpDepth(d int) attribute.KeyValue {
	return attribute.Int(AttrOpDepth, d)
}

// Revision returns the revision attribute.
func Revision(rev int64) attribute.KeyValue {
	return attribute.Int64(AttrRevision, rev)
}

// Backend returns the pristine backend attribute.
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

// Filter returns the event filter attribute.
func Filter(name string) attribute.KeyValue {
	return attribute.String(AttrFilter, name)
}
