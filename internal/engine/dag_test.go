package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/recsync/internal/ir"
)

func TestResolveAccessGroup(t *testing.T) {
	mapping := []ir.GroupMapping{
		{SourceGroup: "siteA", DestGroup: "north"},
		{SourceGroup: "siteB", DestGroup: "east"},
		{SourceGroup: "siteA", DestGroup: "south"},
	}

	tests := []struct {
		name   string
		option ir.DAGOption
		source string
		group  string
		ok     bool
	}{
		{"ignore", ir.DAGIgnore, "siteA", "", false},
		{"same as source", ir.DAGIncludeSameAsSource, "siteA", "siteA", true},
		{"same as source unassigned", ir.DAGIncludeSameAsSource, "", "", true},
		{"map last match wins", ir.DAGMapDeprecated, "siteA", "south", true},
		{"map single", ir.DAGMapDeprecated, "siteB", "east", true},
		{"map unmapped", ir.DAGMapDeprecated, "siteC", "", false},
		{"map unassigned", ir.DAGMapDeprecated, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := &ir.Instruction{DAGOption: tt.option, DAGMap: mapping}
			group, ok := ResolveAccessGroup(ins, tt.source)
			assert.Equal(t, tt.group, group)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
