package wc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/wcstore/pkg/wc/db"
)

func TestRelArg(t *testing.T) {
	tests := map[string]string{
		".":          "",
		"./":         "",
		"./a/b":      "a/b",
		"a//b/":      "a/b",
		"a/./b/../c": "a/c",
	}
	for in, want := range tests {
		assert.Equal(t, want, relArg(in), in)
	}
}

func TestStatusTable(t *testing.T) {
	table := statusTable(map[string]*db.Info{
		"b": {Relpath: "b", Status: db.StatusMovedHere, Kind: db.KindDir, Revision: 1, OpDepth: 1, MovedHere: true},
		"":  {Status: db.StatusNormal, Kind: db.KindDir, Revision: 1},
		"a": {Relpath: "a", Status: db.StatusDeleted, Kind: db.KindDir, Revision: 1, OpDepth: 1, MovedTo: "b", Conflicted: true},
	})

	assert.Equal(t, []string{"PATH", "STATUS", "KIND", "REV", "OP DEPTH", "FLAGS"}, table.Headers())
	assert.Equal(t, [][]string{
		{".", "normal", "dir", "1", "0", ""},
		{"a", "deleted", "dir", "1", "1", "C>"},
		{"b", "moved-here", "dir", "1", "1", "<"},
	}, table.Rows())
}

func TestInfoFields(t *testing.T) {
	fields := infoFields(&db.Info{
		Relpath:  "f",
		Status:   db.StatusCopied,
		Kind:     db.KindFile,
		Revision: -1,
		Checksum: "$sha1$abc",
		Original: &db.Origin{Relpath: "trunk/f", Revision: 7},
	})

	got := make(map[string]string, len(fields))
	for _, kv := range fields {
		got[kv[0]] = kv[1]
	}
	assert.Equal(t, "copied", got["Status"])
	assert.Equal(t, "-", got["Revision"])
	assert.Equal(t, "trunk/f@7", got["Copied from"])
	assert.NotContains(t, got, "Moved to")
	assert.NotContains(t, got, "Repository root")
}

func TestPropsTable(t *testing.T) {
	table := propsTable(db.Props{"z": "1", "a": "2"})
	assert.Equal(t, [][]string{{"a", "2"}, {"z", "1"}}, table.Rows())
}
