package skel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalImplicitAndExplicitAtoms(t *testing.T) {
	s := List(String("file-remove"), String("A/b c"), String(""), List())
	assert.Equal(t, "(file-remove 5 A/b c 0  ())", string(Marshal(s)))

	parsed, err := Unmarshal(Marshal(s))
	require.NoError(t, err)
	require.Equal(t, 4, parsed.Len())
	assert.Equal(t, "file-remove", parsed.At(0).Text())
	assert.Equal(t, "A/b c", parsed.At(1).Text())
	assert.Equal(t, "", parsed.At(2).Text())
	assert.False(t, parsed.At(3).IsAtom)
	assert.Equal(t, 0, parsed.At(3).Len())
}

func TestUnmarshalErrors(t *testing.T) {
	for _, in := range []string{"", "(", "(a", "5 abc", ")", "(a) b", "#"} {
		_, err := Unmarshal([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestIntAtoms(t *testing.T) {
	n, err := Int(42).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = List().Int64()
	assert.Error(t, err)
}

func TestPropsRoundTrip(t *testing.T) {
	p := Props{"svn:eol-style": "native", "bin": "\x00\x01(", "empty": ""}
	data := MarshalProps(p)

	got, err := UnmarshalProps(data)
	require.NoError(t, err)
	assert.True(t, p.Equal(got))

	assert.Nil(t, MarshalProps(nil))
	got, err = UnmarshalProps(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = UnmarshalProps(MarshalProps(Props{}))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPropsOddList(t *testing.T) {
	_, err := UnmarshalProps([]byte("(a)"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestConflictRoundTrip(t *testing.T) {
	c := &Conflict{
		Operation: OperationUpdate,
		Text:      true,
		Props:     []string{"svn:keywords"},
		Tree:      &TreeConflict{Reason: ReasonMovedAway, Action: ActionEdit, MoveSrcOpRoot: "A"},
	}
	got, err := UnmarshalConflict(MarshalConflict(c))
	require.NoError(t, err)
	assert.Equal(t, c, got)

	assert.Nil(t, MarshalConflict(&Conflict{Operation: OperationMerge}))
	assert.True(t, (*Conflict)(nil).IsEmpty())
}
