package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "wcstore Configuration", schema.Title)
	for _, key := range []string{"logging", "database", "pristine", "kevent", "metrics"} {
		assert.Contains(t, schema.Properties, key)
	}
}
