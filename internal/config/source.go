package config

import (
	"context"
	"fmt"
)

// FileSource serves instructions from a settings file. The file is re-read
// on every call so that edits apply to the next save event.
type FileSource struct {
	Path string
}

// Instructions loads the instruction list. projectID is not used: a file
// holds the rule set of a single project.
func (s FileSource) Instructions(ctx context.Context, projectID string) ([]Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	raws, err := Instructions(doc)
	if err != nil {
		return nil, fmt.Errorf("load instructions from %s: %w", s.Path, err)
	}
	return raws, nil
}
