package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsHash_OrderIndependent(t *testing.T) {
	a := map[string]any{"instructions": []any{map[string]any{"enabled": true, "recordIdField": "rid"}}}
	b := map[string]any{"instructions": []any{map[string]any{"recordIdField": "rid", "enabled": true}}}

	ha, err := SettingsHash(a)
	require.NoError(t, err)
	hb, err := SettingsHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
	assert.True(t, SettingsEqual(a, b))
}

func TestSettingsHash_JSONNumbersMatchInts(t *testing.T) {
	fromJSON := map[string]any{"recordMatchMode": float64(1)}
	fromYAML := map[string]any{"recordMatchMode": 1}
	assert.True(t, SettingsEqual(fromJSON, fromYAML))
}

func TestSettingsEqual_Different(t *testing.T) {
	a := map[string]any{"enabled": true}
	b := map[string]any{"enabled": false}
	assert.False(t, SettingsEqual(a, b))
	assert.False(t, SettingsEqual(a, map[string]any{"bad": 0.25}))
}

func TestSameFile(t *testing.T) {
	a := File{MimeType: "image/png", Name: "a.png", Content: []byte{1, 2, 3}}
	b := File{DocID: "other", MimeType: "image/png", Name: "a.png", Content: []byte{1, 2, 3}}
	assert.True(t, SameFile(a, b), "doc id does not take part in comparison")

	renamed := b
	renamed.Name = "b.png"
	assert.False(t, SameFile(a, renamed))

	retyped := b
	retyped.MimeType = "image/jpeg"
	assert.False(t, SameFile(a, retyped))

	changed := b
	changed.Content = []byte{1, 2, 4}
	assert.False(t, SameFile(a, changed))
}
