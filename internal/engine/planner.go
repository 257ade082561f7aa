package engine

import (
	"context"
	"fmt"

	"github.com/roach88/recsync/internal/ir"
)

// PlanInput is everything a firing's plan is built from.
type PlanInput struct {
	Instruction *ir.Instruction
	Source      *ir.Project
	Dest        *ir.Project
	Event       ir.SaveEvent
	SourceData  *ir.RecordData
	Resolution  Resolution
	// DestEvent is the resolved destination event id.
	DestEvent string
	// DestData is the destination record, nil when it does not exist.
	DestData *ir.RecordData
	Override Override
}

// BuildPlan stages the destination writes of one firing. Pairs whose
// destination already holds a value are blocked when onlyIfEmpty is set.
// File fields are compared by content and staged as file transfers. The
// only I/O is reading attachments through files.
func BuildPlan(ctx context.Context, files FileReader, in PlanInput) (*ir.Plan, error) {
	ins := in.Instruction
	instance := in.Event.FirstInstance()
	record := in.Resolution.RecordID
	plan := &ir.Plan{Batch: ir.WriteBatch{Record: record}}
	loc := NewLocator(in.Dest, in.DestEvent, in.DestData, instance, in.Override)

	for _, pair := range ins.CopyFields {
		srcSlot := in.Source.SlotFor(pair.SourceField, in.Event.Event, instance)
		value := in.SourceData.Value(srcSlot, pair.SourceField)

		switch pair.Target.Kind {
		case ir.TargetInstanceOverride:
			continue

		case ir.TargetAccessGroup:
			op := ir.CopyOperation{
				SourceField: pair.SourceField,
				DestField:   ir.AccessGroupField,
				SourceValue: value,
				Slot:        ir.Slot{Event: in.DestEvent},
			}
			if in.DestData != nil && in.DestData.HasAccessGroup {
				op.DestinationValue = in.DestData.AccessGroup
			}
			if op.DestinationValue != "" && pair.OnlyIfEmpty {
				op.Blocked = true
				plan.Blocked = append(plan.Blocked, op)
			} else {
				group := value
				plan.Batch.AccessGroup = &group
			}
			plan.Operations = append(plan.Operations, op)
			continue
		}

		field := pair.Target.Field
		isFile := in.Source.IsFileField(pair.SourceField) && in.Dest.IsFileField(field)
		req := LocateRequest{
			Field:       field,
			SourceShape: srcSlot.Shape,
			Candidate:   value,
			OnlyIfEmpty: pair.OnlyIfEmpty,
		}
		var compareErr error
		if isFile {
			req.Same = func(current string) bool {
				same, err := sameFile(ctx, files, in, value, current)
				if err != nil {
					compareErr = err
				}
				return same
			}
		}
		place := loc.Locate(req)
		if compareErr != nil {
			return nil, compareErr
		}
		op := ir.CopyOperation{
			SourceField:      pair.SourceField,
			DestField:        field,
			SourceValue:      value,
			DestinationValue: place.Current,
			Slot:             place.Slot,
		}
		if place.Skip {
			plan.Operations = append(plan.Operations, op)
			continue
		}
		if place.Current != "" && pair.OnlyIfEmpty {
			op.Blocked = true
			plan.Blocked = append(plan.Blocked, op)
			plan.Operations = append(plan.Operations, op)
			continue
		}
		plan.Operations = append(plan.Operations, op)

		if isFile {
			transfer, err := planFile(ctx, files, in, field, value, place)
			if err != nil {
				return nil, err
			}
			if transfer != nil {
				plan.Files = append(plan.Files, *transfer)
			}
			continue
		}
		if in.Source.IsFileField(pair.SourceField) {
			// document ids are not copied as values
			continue
		}
		plan.Batch.Stage(ir.FieldWrite{Field: field, Slot: place.Slot, Value: value})
	}

	if plan.Batch.AccessGroup == nil {
		if group, ok := ResolveAccessGroup(ins, sourceGroup(in)); ok {
			plan.Batch.AccessGroup = &group
		}
	}

	// A reserved id is stored in an empty lookup field only; a lookup value
	// the user entered is never replaced.
	if in.Resolution.Kind == ResolveReserved && in.Resolution.Lookup == "" && ins.RecordIDField != in.Source.PrimaryKey {
		plan.WriteBack = &ir.FieldWrite{
			Field: ins.RecordIDField,
			Slot:  in.Source.SlotFor(ins.RecordIDField, in.Event.Event, instance),
			Value: record,
		}
	}
	return plan, nil
}

// planFile stages a copy when the source attachment differs from the one
// in the destination slot, or a delete when the source was cleared.
func planFile(ctx context.Context, files FileReader, in PlanInput, field, docID string, place Placement) (*ir.FileTransfer, error) {
	record := in.Resolution.RecordID
	if docID == "" {
		if place.Current == "" {
			return nil, nil
		}
		return &ir.FileTransfer{Kind: ir.FileDelete, DocID: place.Current, Record: record, Field: field, Slot: place.Slot}, nil
	}

	same, err := sameFile(ctx, files, in, docID, place.Current)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, nil
	}
	return &ir.FileTransfer{Kind: ir.FileCopy, DocID: docID, Record: record, Field: field, Slot: place.Slot}, nil
}

// sameFile reports whether source attachment docID and destination
// attachment current have the same mime type, name and content. Empty
// references only match each other.
func sameFile(ctx context.Context, files FileReader, in PlanInput, docID, current string) (bool, error) {
	if docID == "" || current == "" {
		return docID == current, nil
	}
	src, err := files.GetFile(ctx, in.Source.ID, docID)
	if err != nil {
		return false, fmt.Errorf("read source file %s: %w", docID, err)
	}
	dst, err := files.GetFile(ctx, in.Dest.ID, current)
	if err != nil {
		return false, fmt.Errorf("read destination file %s: %w", current, err)
	}
	return ir.SameFile(src, dst), nil
}

// sourceGroup is the access group of the saved record, falling back to
// the group reported with the save event.
func sourceGroup(in PlanInput) string {
	if in.SourceData != nil && in.SourceData.HasAccessGroup {
		return in.SourceData.AccessGroup
	}
	return in.Event.Group
}
