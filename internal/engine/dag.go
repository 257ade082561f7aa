package engine

import "github.com/roach88/recsync/internal/ir"

// ResolveAccessGroup returns the destination access group for a source
// record in sourceGroup. ok is false when no group is to be assigned.
//
// DAGMapDeprecated folds over the mapping list in order; a later entry for
// the same source group replaces an earlier one (last match wins). An
// empty source group maps to an empty destination group.
func ResolveAccessGroup(ins *ir.Instruction, sourceGroup string) (group string, ok bool) {
	switch ins.DAGOption {
	case ir.DAGIncludeSameAsSource:
		return sourceGroup, true
	case ir.DAGMapDeprecated:
		if sourceGroup == "" {
			return "", true
		}
		for _, m := range ins.DAGMap {
			if m.SourceGroup == sourceGroup {
				group, ok = m.DestGroup, true
			}
		}
		return group, ok
	default:
		return "", false
	}
}
