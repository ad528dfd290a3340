package db

import (
	"time"

	"github.com/marmos91/wcstore/pkg/wc/skel"
)

// Presence is the raw presence value stored on a node row.
type Presence string

const (
	PresenceNormal         Presence = "normal"
	PresenceIncomplete     Presence = "incomplete"
	PresenceNotPresent     Presence = "not-present"
	PresenceExcluded       Presence = "excluded"
	PresenceServerExcluded Presence = "server-excluded"
	PresenceBaseDeleted    Presence = "base-deleted"
)

// IsLive reports whether the presence describes a node that exists.
func (p Presence) IsLive() bool {
	return p == PresenceNormal || p == PresenceIncomplete
}

// IsDeleteMarker reports whether a working row with this presence shadows
// lower layers as deleted.
func (p Presence) IsDeleteMarker() bool {
	return p == PresenceBaseDeleted || p == PresenceNotPresent
}

// Status is the composite status reported to callers.
type Status int

const (
	StatusNormal Status = iota + 1
	StatusAdded
	StatusCopied
	StatusMovedHere
	StatusDeleted
	StatusNotPresent
	StatusExcluded
	StatusServerExcluded
	StatusIncomplete
)

// MarshalText renders the status by name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusAdded:
		return "added"
	case StatusCopied:
		return "copied"
	case StatusMovedHere:
		return "moved-here"
	case StatusDeleted:
		return "deleted"
	case StatusNotPresent:
		return "not-present"
	case StatusExcluded:
		return "excluded"
	case StatusServerExcluded:
		return "server-excluded"
	case StatusIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// IsAddition reports whether the status is one of the added family.
func (s Status) IsAddition() bool {
	return s == StatusAdded || s == StatusCopied || s == StatusMovedHere
}

// baseStatus maps a BASE presence to the reported status.
func baseStatus(p Presence) Status {
	switch p {
	case PresenceNormal:
		return StatusNormal
	case PresenceIncomplete:
		return StatusIncomplete
	case PresenceNotPresent:
		return StatusNotPresent
	case PresenceExcluded:
		return StatusExcluded
	case PresenceServerExcluded:
		return StatusServerExcluded
	default:
		return StatusNormal
	}
}

// workingStatus maps a WORKING presence to the reported status. Present
// rows report StatusAdded; callers refine via ScanAddition.
func workingStatus(p Presence) Status {
	switch p {
	case PresenceNotPresent, PresenceBaseDeleted:
		return StatusDeleted
	case PresenceExcluded:
		return StatusExcluded
	case PresenceIncomplete:
		return StatusIncomplete
	default:
		return StatusAdded
	}
}

// Kind is the node kind.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindUnknown Kind = "unknown"
)

// Depth is the ambient depth of a directory.
type Depth string

const (
	DepthUnknown    Depth = ""
	DepthEmpty      Depth = "empty"
	DepthFiles      Depth = "files"
	DepthImmediates Depth = "immediates"
	DepthInfinity   Depth = "infinity"
)

// Props is a versioned property set.
type Props = skel.Props

// Conflict is a recorded conflict description.
type Conflict = skel.Conflict

// ChangeInfo is the last-changed information of a node.
type ChangeInfo struct {
	Revision int64
	Date     time.Time
	Author   string
}

// ReposLocation identifies a path in a repository.
type ReposLocation struct {
	RootURL  string
	UUID     string
	Relpath  string
	Revision int64
}

// IsZero reports whether no location is set.
func (l ReposLocation) IsZero() bool {
	return l.RootURL == "" && l.Relpath == ""
}

// ============================================================================
// Node content (kind-specific fields)
// ============================================================================

// NodeContent carries the fields that only make sense for one node kind.
// Exactly one of DirContent, FileContent, SymlinkContent or AbsentContent
// is used per insert.
type NodeContent interface {
	Kind() Kind
	isNodeContent()
}

// DirContent describes a directory. Children, when non-nil, are inserted as
// incomplete placeholders.
type DirContent struct {
	Depth    Depth
	Children []string
}

// FileContent describes a file.
type FileContent struct {
	Checksum     string
	RecordedSize int64
	RecordedTime time.Time
}

// SymlinkContent describes a symlink.
type SymlinkContent struct {
	Target string
}

// AbsentContent describes a node that is not present, excluded or
// server-excluded; only its kind is known.
type AbsentContent struct {
	NodeKind Kind
}

func (DirContent) Kind() Kind     { return KindDir }
func (FileContent) Kind() Kind    { return KindFile }
func (SymlinkContent) Kind() Kind { return KindSymlink }
func (c AbsentContent) Kind() Kind {
	if c.NodeKind == "" {
		return KindUnknown
	}
	return c.NodeKind
}

func (DirContent) isNodeContent()     {}
func (FileContent) isNodeContent()    {}
func (SymlinkContent) isNodeContent() {}
func (AbsentContent) isNodeContent()  {}

// ============================================================================
// Insert parameters
// ============================================================================

// BaseNode is the input of InsertBase.
type BaseNode struct {
	Relpath  string
	Presence Presence
	Repos    ReposLocation
	Props    Props
	Changed  ChangeInfo
	Content  NodeContent

	// FileExternal marks the node as a file external.
	FileExternal bool

	// UpdateActualProps replaces the actual properties with ActualProps.
	UpdateActualProps bool
	ActualProps       Props

	Conflict  *Conflict
	WorkItems []WorkItem
}

// Origin is the copy-from source of a working node.
type Origin struct {
	RootURL  string
	UUID     string
	Relpath  string
	Revision int64
}

// WorkingNode is the input of InsertWorking.
type WorkingNode struct {
	Relpath  string
	Presence Presence
	OpDepth  int
	Props    Props
	Changed  ChangeInfo
	Content  NodeContent

	// Origin is nil for a plain addition.
	Origin    *Origin
	MovedHere bool

	// NotPresentOpDepth, when > 0 and below OpDepth, records a not-present
	// marker for the same path at that depth.
	NotPresentOpDepth int

	UpdateActualProps bool
	ActualProps       Props

	Conflict  *Conflict
	WorkItems []WorkItem
}

// ============================================================================
// Read results
// ============================================================================

// LockInfo is a repository lock recorded for a node.
type LockInfo struct {
	Token   string
	Owner   string
	Comment string
	Date    time.Time
}

// Info is the composite view of one path.
type Info struct {
	Relpath  string
	Status   Status
	Kind     Kind
	Revision int64
	Repos    ReposLocation
	Changed  ChangeInfo
	Depth    Depth
	Checksum string
	Target   string

	// Original is the copy-from location of an added node's row, if any.
	Original *Origin
	OpDepth  int
	OpRoot   bool

	Lock         *LockInfo
	RecordedSize int64
	RecordedTime time.Time
	Changelist   string
	Conflicted   bool

	HadProps bool
	PropsMod bool

	HaveBase     bool
	HaveMoreWork bool
	HaveWork     bool
	MovedHere    bool
	MovedTo      string
	FileExternal bool
}

// DeletionInfo is the result of ScanDeletion.
type DeletionInfo struct {
	// BaseDelRelpath is the root of the BASE deletion or replacement.
	BaseDelRelpath string
	// MovedToRelpath is where this path moved to.
	MovedToRelpath string
	// WorkDelRelpath is the root of a deletion inside a WORKING subtree.
	WorkDelRelpath string
	// MovedToOpRoot is the op-root of the move destination.
	MovedToOpRoot string
}

// AdditionInfo is the result of ScanAddition.
type AdditionInfo struct {
	Status Status
	OpRoot string
	// Repos is the location the path will have once committed.
	Repos    ReposLocation
	Original *Origin

	MovedFromRelpath string
	MovedFromOpRoot  string
	MovedFromOpDepth int
}

// MovedFromInfo is the delete-half of a move.
type MovedFromInfo struct {
	Relpath string
	OpRoot  string
	OpDepth int
}
