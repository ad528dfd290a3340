package skel

import "fmt"

// Conflict operations.
const (
	OperationNone   = "none"
	OperationUpdate = "update"
	OperationSwitch = "switch"
	OperationMerge  = "merge"
)

// Tree conflict reasons (the local state) and actions (the incoming change).
const (
	ReasonEdited    = "edited"
	ReasonDeleted   = "deleted"
	ReasonMovedAway = "moved-away"
	ReasonReplaced  = "replaced"
	ReasonAdded     = "added"
	ReasonMissing   = "missing"
	ActionEdit      = "edit"
	ActionDelete    = "delete"
	ActionAdd       = "add"
	ActionReplace   = "replace"
)

// TreeConflict describes a conflict on the node's existence or location.
type TreeConflict struct {
	Reason string
	Action string
	// MoveSrcOpRoot names the op-root of the move when Reason is moved-away.
	MoveSrcOpRoot string
}

// Conflict is the conflict description recorded on an actual row.
type Conflict struct {
	Operation string
	Text      bool
	Props     []string
	Tree      *TreeConflict
}

// IsEmpty reports whether no conflict kind is recorded.
func (c *Conflict) IsEmpty() bool {
	return c == nil || (!c.Text && len(c.Props) == 0 && c.Tree == nil)
}

// MarshalConflict encodes c as
//
//	(conflict <operation> (text) (props <name>...) (tree <reason> <action> <move-src>))
//
// with absent kinds omitted. A nil or empty conflict encodes to nil.
func MarshalConflict(c *Conflict) []byte {
	if c.IsEmpty() {
		return nil
	}
	op := c.Operation
	if op == "" {
		op = OperationNone
	}
	s := List(String("conflict"), String(op))
	if c.Text {
		s.Append(List(String("text")))
	}
	if len(c.Props) > 0 {
		props := List(String("props"))
		for _, name := range c.Props {
			props.Append(String(name))
		}
		s.Append(props)
	}
	if c.Tree != nil {
		s.Append(List(String("tree"), String(c.Tree.Reason), String(c.Tree.Action), String(c.Tree.MoveSrcOpRoot)))
	}
	return Marshal(s)
}

// UnmarshalConflict parses an encoded conflict. Empty input yields nil.
func UnmarshalConflict(data []byte) (*Conflict, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if s.IsAtom || s.Len() < 2 || s.At(0).Text() != "conflict" {
		return nil, fmt.Errorf("%w: not a conflict skel", ErrMalformed)
	}

	c := &Conflict{Operation: s.At(1).Text()}
	for i := 2; i < s.Len(); i++ {
		part := s.At(i)
		if part.IsAtom || part.Len() == 0 {
			return nil, fmt.Errorf("%w: bad conflict part", ErrMalformed)
		}
		switch part.At(0).Text() {
		case "text":
			c.Text = true
		case "props":
			for j := 1; j < part.Len(); j++ {
				c.Props = append(c.Props, part.At(j).Text())
			}
		case "tree":
			if part.Len() != 4 {
				return nil, fmt.Errorf("%w: tree conflict needs reason, action and move source", ErrMalformed)
			}
			c.Tree = &TreeConflict{
				Reason:        part.At(1).Text(),
				Action:        part.At(2).Text(),
				MoveSrcOpRoot: part.At(3).Text(),
			}
		default:
			return nil, fmt.Errorf("%w: unknown conflict kind %q", ErrMalformed, part.At(0).Text())
		}
	}
	return c, nil
}
