package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var settingsSchema string

// KeyInstructions is the settings key holding the instruction list.
const KeyInstructions = "instructions"

// Settings is a rule-set document.
type Settings = map[string]any

// LoadError is a configuration file that could not be loaded.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadFile reads a settings document. The format follows the extension:
// .cue, .yaml/.yml or .json.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path, data)
	case ".yaml", ".yml":
		return LoadYAML(path, data)
	case ".json":
		return LoadJSON(path, data)
	default:
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unsupported settings format %q", filepath.Ext(path))}
	}
}

// LoadCUE compiles a CUE settings document and checks it against the
// #Settings schema.
func LoadCUE(path string, data []byte) (Settings, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(settingsSchema, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(path))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(path, err, cue.Value{})
	}

	v := schema.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(path, err, doc)
	}

	// Round-trip through JSON so that numbers decode exactly as they do for
	// JSON documents.
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(path, err, doc)
	}
	return LoadJSON(path, out)
}

// LoadYAML decodes a YAML settings document.
func LoadYAML(path string, data []byte) (Settings, error) {
	var doc Settings
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	if doc == nil {
		doc = Settings{}
	}
	return doc, nil
}

// LoadJSON decodes a JSON settings document.
func LoadJSON(path string, data []byte) (Settings, error) {
	var doc Settings
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("parse json: %v", err)}
	}
	if doc == nil {
		doc = Settings{}
	}
	return doc, nil
}

// Instructions extracts the ordered raw instruction list of a document.
// A document without the instructions key has no instructions.
func Instructions(doc Settings) ([]Raw, error) {
	v, ok := doc[KeyInstructions]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := coerceObjectList(v)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of objects", KeyInstructions)
	}
	return list, nil
}

// NewSettings wraps an instruction list as a settings document.
func NewSettings(raws []Raw) Settings {
	list := make([]any, len(raws))
	for i, r := range raws {
		list[i] = r
	}
	return Settings{KeyInstructions: list}
}

// formatCUEError keeps the first position that points into the document.
// Schema conflicts such as empty disjunctions carry no input position;
// those fall back to the position of the offending value in doc.
func formatCUEError(path string, err error, doc cue.Value) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Path: path, Message: first.Error()}

	var fallback token.Pos
	for _, e := range errs {
		positions := append(cueerrors.Positions(e), e.Position())
		for _, pos := range positions {
			if !pos.IsValid() {
				continue
			}
			if pos.Filename() == path {
				le.Pos = pos
				return le
			}
			if !fallback.IsValid() {
				fallback = pos
			}
		}
	}
	if doc.Exists() {
		if pos := valuePos(doc, first.Path()); pos.IsValid() {
			le.Pos = pos
			return le
		}
	}
	le.Pos = fallback
	return le
}

// valuePos returns the position of the deepest value of doc along an
// error path, skipping leading definition selectors such as #Settings.
func valuePos(doc cue.Value, path []string) token.Pos {
	var sels []cue.Selector
	for _, elem := range path {
		if strings.HasPrefix(elem, "#") && len(sels) == 0 {
			continue
		}
		if n, err := strconv.Atoi(elem); err == nil {
			sels = append(sels, cue.Index(n))
		} else {
			sels = append(sels, cue.Str(elem))
		}
	}
	for ; len(sels) > 0; sels = sels[:len(sels)-1] {
		if v := doc.LookupPath(cue.MakePath(sels...)); v.Exists() && v.Pos().IsValid() {
			return v.Pos()
		}
	}
	return doc.Pos()
}

// IsLoadError reports whether err is a configuration file problem.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
