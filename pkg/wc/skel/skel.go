// Package skel implements the nested list/atom encoding used for property
// sets, conflict descriptions and deferred work items.
//
// Encoding:
//
//	atom  := implicit | explicit
//	implicit := a word starting with a letter and made only of name bytes
//	explicit := <decimal length> SP <bytes>
//	list  := "(" [ skel { SP skel } ] ")"
package skel

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned when input does not parse as a skel.
var ErrMalformed = errors.New("malformed skel")

// Skel is either an atom or a list of skels.
type Skel struct {
	IsAtom bool
	Data   []byte
	List   []*Skel
}

// Atom returns an atom skel holding data.
func Atom(data []byte) *Skel {
	return &Skel{IsAtom: true, Data: data}
}

// String returns an atom skel holding s.
func String(s string) *Skel {
	return Atom([]byte(s))
}

// Int returns an atom skel holding the decimal form of n.
func Int(n int64) *Skel {
	return String(strconv.FormatInt(n, 10))
}

// List returns a list skel of items.
func List(items ...*Skel) *Skel {
	if items == nil {
		items = []*Skel{}
	}
	return &Skel{List: items}
}

// Text returns the atom's data as a string.
func (s *Skel) Text() string {
	if s == nil || !s.IsAtom {
		return ""
	}
	return string(s.Data)
}

// Int64 parses the atom as a decimal integer.
func (s *Skel) Int64() (int64, error) {
	if s == nil || !s.IsAtom {
		return 0, fmt.Errorf("%w: expected integer atom", ErrMalformed)
	}
	return strconv.ParseInt(string(s.Data), 10, 64)
}

// Len returns the number of list items (0 for atoms).
func (s *Skel) Len() int {
	if s == nil || s.IsAtom {
		return 0
	}
	return len(s.List)
}

// At returns the i-th list item or nil.
func (s *Skel) At(i int) *Skel {
	if s == nil || s.IsAtom || i < 0 || i >= len(s.List) {
		return nil
	}
	return s.List[i]
}

// Append adds items to a list skel.
func (s *Skel) Append(items ...*Skel) *Skel {
	s.List = append(s.List, items...)
	return s
}

// Marshal serializes s.
func Marshal(s *Skel) []byte {
	var buf bytes.Buffer
	writeSkel(&buf, s)
	return buf.Bytes()
}

func writeSkel(buf *bytes.Buffer, s *Skel) {
	if s.IsAtom {
		if implicitOK(s.Data) {
			buf.Write(s.Data)
			return
		}
		buf.WriteString(strconv.Itoa(len(s.Data)))
		buf.WriteByte(' ')
		buf.Write(s.Data)
		return
	}
	buf.WriteByte('(')
	for i, item := range s.List {
		if i > 0 {
			buf.WriteByte(' ')
		}
		writeSkel(buf, item)
	}
	buf.WriteByte(')')
}

// Unmarshal parses data into a skel. Trailing whitespace is allowed,
// trailing content is not.
func Unmarshal(data []byte) (*Skel, error) {
	p := &parser{data: data}
	s, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.data) {
		return nil, fmt.Errorf("%w: trailing data at offset %d", ErrMalformed, p.pos)
	}
	return s, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) && isSpace(p.data[p.pos]) {
		p.pos++
	}
}

func (p *parser) parse() (*Skel, error) {
	p.skipSpace()
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrMalformed)
	}

	c := p.data[p.pos]
	switch {
	case c == '(':
		p.pos++
		list := List()
		for {
			p.skipSpace()
			if p.pos >= len(p.data) {
				return nil, fmt.Errorf("%w: unterminated list", ErrMalformed)
			}
			if p.data[p.pos] == ')' {
				p.pos++
				return list, nil
			}
			item, err := p.parse()
			if err != nil {
				return nil, err
			}
			list.Append(item)
		}
	case isDigit(c):
		start := p.pos
		for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
			p.pos++
		}
		n, err := strconv.Atoi(string(p.data[start:p.pos]))
		if err != nil {
			return nil, fmt.Errorf("%w: bad length: %v", ErrMalformed, err)
		}
		if p.pos >= len(p.data) || !isSpace(p.data[p.pos]) {
			return nil, fmt.Errorf("%w: missing separator after length", ErrMalformed)
		}
		p.pos++
		if n > len(p.data)-p.pos {
			return nil, fmt.Errorf("%w: atom length %d exceeds input", ErrMalformed, n)
		}
		data := make([]byte, n)
		copy(data, p.data[p.pos:p.pos+n])
		p.pos += n
		return Atom(data), nil
	case isAlpha(c):
		start := p.pos
		for p.pos < len(p.data) && isNameByte(p.data[p.pos]) {
			p.pos++
		}
		data := make([]byte, p.pos-start)
		copy(data, p.data[start:p.pos])
		return Atom(data), nil
	default:
		return nil, fmt.Errorf("%w: unexpected byte %q at offset %d", ErrMalformed, c, p.pos)
	}
}

func implicitOK(data []byte) bool {
	if len(data) == 0 || len(data) > 100 || !isAlpha(data[0]) {
		return false
	}
	for _, c := range data {
		if !isNameByte(c) {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '-' || c == '_' || c == '.' || c == ':'
}
