package testutil

import (
	"context"
	"sync"

	"github.com/roach88/recsync/internal/config"
)

// StaticConfig serves a fixed instruction list and counts how often it
// was asked.
type StaticConfig struct {
	mu    sync.Mutex
	raws  []config.Raw
	calls int
}

// NewStaticConfig creates a config source serving raws.
func NewStaticConfig(raws ...config.Raw) *StaticConfig {
	return &StaticConfig{raws: raws}
}

// Instructions returns the configured list.
func (c *StaticConfig) Instructions(context.Context, string) ([]config.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.raws, nil
}

// Set replaces the instruction list.
func (c *StaticConfig) Set(raws ...config.Raw) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raws = raws
}

// Calls returns the number of Instructions calls.
func (c *StaticConfig) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Pair builds a raw copy field entry.
func Pair(source, dest string, onlyIfEmpty bool) map[string]any {
	return map[string]any{
		config.KeySourceField: source,
		config.KeyDestField:   dest,
		config.KeyOnlyIfEmpty: onlyIfEmpty,
	}
}

// Instruction builds an enabled raw instruction triggered by the enrolment
// form, copying into the destination fixture project.
func Instruction(recordIDField, matchMode string, pairs ...map[string]any) config.Raw {
	list := make([]any, len(pairs))
	for i, p := range pairs {
		list[i] = p
	}
	return config.Raw{
		config.KeyEnabled:            true,
		config.KeyTriggerForms:       []any{"enrolment"},
		config.KeyDestinationProject: DestID,
		config.KeyRecordIDField:      recordIDField,
		config.KeyRecordMatchMode:    matchMode,
		config.KeyDAGOption:          "ignore",
		config.KeyCopyFields:         list,
	}
}
