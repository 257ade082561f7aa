package engine

import (
	"context"
	"fmt"

	"github.com/roach88/recsync/internal/ir"
)

// ResolveKind is the outcome of destination record resolution.
type ResolveKind int

const (
	// ResolveSkip means the match policy declines to fire.
	ResolveSkip ResolveKind = iota
	// ResolveMatched means an existing destination record was found.
	ResolveMatched
	// ResolveCreate means a new record is created with the lookup value as
	// its id.
	ResolveCreate
	// ResolveReserved means a new autonumbered id was reserved.
	ResolveReserved
)

// String returns the resolution name.
func (k ResolveKind) String() string {
	switch k {
	case ResolveSkip:
		return "skip"
	case ResolveMatched:
		return "matched"
	case ResolveCreate:
		return "create"
	case ResolveReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// Resolution identifies the destination record of a firing.
type Resolution struct {
	Kind     ResolveKind `json:"kind"`
	RecordID string      `json:"record_id,omitempty"`
	Lookup   string      `json:"lookup"`
}

// New reports whether the destination record does not exist yet.
func (r Resolution) New() bool {
	return r.Kind == ResolveCreate || r.Kind == ResolveReserved
}

// ResolveInput is what destination record resolution needs.
type ResolveInput struct {
	Instruction *ir.Instruction
	Source      *ir.Project
	Dest        *ir.Project
	Event       ir.SaveEvent
	SourceData  *ir.RecordData
}

// LookupValue returns the value used to find the destination record. When
// the record id field is the source primary key the saved record id is
// used without reading data.
func LookupValue(in ResolveInput) string {
	field := in.Instruction.RecordIDField
	if field == in.Source.PrimaryKey {
		return in.Event.Record
	}
	slot := in.Source.SlotFor(field, in.Event.Event, in.Event.FirstInstance())
	return in.SourceData.Value(slot, field)
}

// ResolveRecord resolves the destination record identity. It queries the
// destination at most once and may reserve a new record id, which is not
// released if the firing later fails.
func ResolveRecord(ctx context.Context, finder RecordFinder, in ResolveInput) (Resolution, error) {
	ins := in.Instruction
	lookup := LookupValue(in)
	res := Resolution{Lookup: lookup}

	switch ins.RecordMatch {
	case ir.MatchNoCreate:
		if lookup == "" {
			return res, nil
		}
		found, err := exists(ctx, finder, in.Dest, lookup)
		if err != nil || !found {
			return res, err
		}
		res.Kind, res.RecordID = ResolveMatched, lookup
		return res, nil

	case ir.MatchOrCreate:
		if lookup == "" {
			return res, &LookupError{Code: EmptyLookup, Field: ins.RecordIDField}
		}
		found, err := exists(ctx, finder, in.Dest, lookup)
		if err != nil {
			return res, err
		}
		res.RecordID = lookup
		if found {
			res.Kind = ResolveMatched
		} else {
			res.Kind = ResolveCreate
		}
		return res, nil

	case ir.MatchOrAutonumber:
		if lookup != "" {
			found, err := exists(ctx, finder, in.Dest, lookup)
			if err != nil {
				return res, err
			}
			if found {
				res.Kind, res.RecordID = ResolveMatched, lookup
				return res, nil
			}
		}
		id, err := finder.ReserveNewID(ctx, in.Dest.ID)
		if err != nil {
			return res, fmt.Errorf("reserve record id: %w", err)
		}
		res.Kind, res.RecordID = ResolveReserved, id
		return res, nil

	case ir.LookupBySecondaryKey:
		if lookup == "" {
			return res, nil
		}
		ids, err := finder.FindRecords(ctx, in.Dest.ID, in.Dest.SecondaryKey, lookup)
		if err != nil {
			return res, fmt.Errorf("find records by %s: %w", in.Dest.SecondaryKey, err)
		}
		switch len(ids) {
		case 0:
			return res, nil
		case 1:
			res.Kind, res.RecordID = ResolveMatched, ids[0]
			return res, nil
		default:
			return res, &LookupError{Code: AmbiguousLookup, Field: in.Dest.SecondaryKey, Value: lookup, Matches: ids}
		}

	default:
		return res, fmt.Errorf("unsupported record match mode %s", ins.RecordMatch)
	}
}

func exists(ctx context.Context, finder RecordFinder, dest *ir.Project, id string) (bool, error) {
	ids, err := finder.FindRecords(ctx, dest.ID, dest.PrimaryKey, id)
	if err != nil {
		return false, fmt.Errorf("find record %s: %w", id, err)
	}
	return len(ids) > 0, nil
}
