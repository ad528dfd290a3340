package cmdutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/pkg/wc/db"
)

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("Infinity")
	require.NoError(t, err)
	assert.Equal(t, db.DepthInfinity, d)

	_, err = ParseDepth("deep")
	assert.Error(t, err)
}

func TestParseProps(t *testing.T) {
	props, err := ParseProps([]string{"svn:eol-style=native", "empty="})
	require.NoError(t, err)
	assert.Equal(t, db.Props{"svn:eol-style": "native", "empty": ""}, props)

	props, err = ParseProps(nil)
	require.NoError(t, err)
	assert.Nil(t, props)

	_, err = ParseProps([]string{"=x"})
	assert.Error(t, err)
	_, err = ParseProps([]string{"novalue"})
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	Flags.Output = "yaml"
	defer func() { Flags.Output = "" }()

	var buf bytes.Buffer
	p, err := Printer(&buf)
	require.NoError(t, err)
	require.NoError(t, p.Print(map[string]string{"a": "b"}))
	assert.Equal(t, "a: b\n", buf.String())

	Flags.Output = "xml"
	_, err = Printer(&buf)
	assert.Error(t, err)
}
