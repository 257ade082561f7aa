package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cueSettings = `
instructions: [{
	enabled:            true
	triggerForms:       ["enrolment"]
	destinationProject: 30
	recordIdField:      "dest_id"
	recordMatchMode:    "match-or-create"
	dagOption:          0
	copyFields: [{sourceField: "wt", destField: "weight", onlyIfEmpty: false}]
}]
`

const yamlSettings = `
instructions:
  - enabled: true
    triggerForms: [enrolment]
    destinationProject: 30
    recordIdField: dest_id
    recordMatchMode: match-or-create
    dagOption: 0
    copyFields:
      - {sourceField: wt, destField: weight, onlyIfEmpty: false}
`

const jsonSettings = `{"instructions":[{"enabled":true,"triggerForms":["enrolment"],
"destinationProject":30,"recordIdField":"dest_id","recordMatchMode":"match-or-create",
"dagOption":0,"copyFields":[{"sourceField":"wt","destField":"weight","onlyIfEmpty":false}]}]}`

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"cue", "settings.cue", cueSettings},
		{"yaml", "settings.yaml", yamlSettings},
		{"json", "settings.json", jsonSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := LoadFile(writeSettings(t, tt.file, tt.content))
			require.NoError(t, err)

			raws, err := Instructions(doc)
			require.NoError(t, err)
			require.Len(t, raws, 1)

			res := Parse(context.Background(), raws[0], 0, testEnv())
			require.True(t, res.OK(), "%v", res.Errors())
			assert.Equal(t, "30", res.Instruction.DestinationProject)
			assert.Equal(t, "weight", res.Instruction.CopyFields[0].Target.Field)
		})
	}
}

func TestLoadCUE_TypeErrorHasPosition(t *testing.T) {
	path := writeSettings(t, "bad.cue", `instructions: [{enabled: [1, 2]}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, IsLoadError(err))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, le.Pos.IsValid(), "expected a source position in %v", err)
	assert.Equal(t, path, le.Pos.Filename())
	assert.Equal(t, 1, le.Pos.Line())
}

func TestLoadCUE_SyntaxError(t *testing.T) {
	_, err := LoadFile(writeSettings(t, "broken.cue", `instructions: [`))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsLoadError(err))

	_, err = LoadFile(writeSettings(t, "settings.toml", "x = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported settings format")

	_, err = LoadFile(writeSettings(t, "bad.json", "{"))
	assert.True(t, IsLoadError(err))
}

func TestInstructions(t *testing.T) {
	raws, err := Instructions(Settings{})
	require.NoError(t, err)
	assert.Empty(t, raws)

	_, err = Instructions(Settings{KeyInstructions: "nope"})
	assert.Error(t, err)

	doc := NewSettings([]Raw{validRaw()})
	raws, err = Instructions(doc)
	require.NoError(t, err)
	assert.Equal(t, []Raw{validRaw()}, raws)
}

func TestFileSource_RereadsFile(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"instructions":[]}`)
	src := FileSource{Path: path}

	raws, err := src.Instructions(context.Background(), "20")
	require.NoError(t, err)
	assert.Empty(t, raws)

	require.NoError(t, os.WriteFile(path, []byte(jsonSettings), 0o644))
	raws, err = src.Instructions(context.Background(), "20")
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}
