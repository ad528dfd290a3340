package skel

import (
	"fmt"
	"maps"
	"slices"
)

// Props is a versioned property set. A nil Props means "no property set
// recorded"; an empty non-nil Props is an explicitly empty set.
type Props map[string]string

// Clone returns a copy of p, preserving nil.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Equal reports key/value equality, treating nil and empty as equal.
func (p Props) Equal(other Props) bool {
	return maps.Equal(p, other)
}

// MarshalProps serializes p as a list of alternating names and values in
// name order. A nil set serializes to nil.
func MarshalProps(p Props) []byte {
	if p == nil {
		return nil
	}
	list := List()
	for _, name := range slices.Sorted(maps.Keys(p)) {
		list.Append(String(name), String(p[name]))
	}
	return Marshal(list)
}

// UnmarshalProps parses a serialized property set. Empty input yields nil.
func UnmarshalProps(data []byte) (Props, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if s.IsAtom || s.Len()%2 != 0 {
		return nil, fmt.Errorf("%w: property list must hold name/value pairs", ErrMalformed)
	}
	props := make(Props, s.Len()/2)
	for i := 0; i < s.Len(); i += 2 {
		name, value := s.At(i), s.At(i+1)
		if !name.IsAtom || !value.IsAtom {
			return nil, fmt.Errorf("%w: property names and values must be atoms", ErrMalformed)
		}
		props[name.Text()] = value.Text()
	}
	return props, nil
}
