package ir

import "sort"

// CopyOperation is the evaluation of one copy pair in one firing.
type CopyOperation struct {
	SourceField      string `json:"source_field"`
	DestField        string `json:"dest_field"`
	SourceValue      string `json:"source_value"`
	DestinationValue string `json:"destination_value"`
	Slot             Slot   `json:"slot"`
	Blocked          bool   `json:"blocked,omitempty"`
}

// FileTransferKind distinguishes copy and delete directives.
type FileTransferKind int

const (
	FileCopy FileTransferKind = iota
	FileDelete
)

// String returns the directive name.
func (k FileTransferKind) String() string {
	if k == FileDelete {
		return "delete"
	}
	return "copy"
}

// FileTransfer is a file operation staged for the destination.
// For FileCopy, DocID is the source document; for FileDelete it is the
// destination document being removed from the slot.
type FileTransfer struct {
	Kind   FileTransferKind `json:"kind"`
	DocID  string           `json:"doc_id"`
	Record string           `json:"record"`
	Field  string           `json:"field"`
	Slot   Slot             `json:"slot"`
}

// FieldWrite is one staged destination value.
type FieldWrite struct {
	Field string `json:"field"`
	Slot  Slot   `json:"slot"`
	Value string `json:"value"`
}

// WriteBatch is the set of values written to one destination record.
type WriteBatch struct {
	Record      string       `json:"record"`
	Writes      []FieldWrite `json:"writes"`
	AccessGroup *string      `json:"access_group,omitempty"`
}

// Empty reports whether the batch writes nothing.
func (b *WriteBatch) Empty() bool {
	return len(b.Writes) == 0 && b.AccessGroup == nil
}

// Stage adds a write. A later write to the same field and slot replaces an
// earlier one (last write wins).
func (b *WriteBatch) Stage(w FieldWrite) {
	for i := range b.Writes {
		if b.Writes[i].Field == w.Field && b.Writes[i].Slot == w.Slot {
			b.Writes[i] = w
			return
		}
	}
	b.Writes = append(b.Writes, w)
}

// Value returns the staged value of field in any slot.
func (b *WriteBatch) Value(field string) (string, bool) {
	for _, w := range b.Writes {
		if w.Field == field {
			return w.Value, true
		}
	}
	return "", false
}

// Snapshot converts the batch to the store's write shape.
func (b *WriteBatch) Snapshot() Snapshot {
	rec := NewRecordData()
	for _, w := range b.Writes {
		rec.Set(w.Slot, w.Field, w.Value)
	}
	if b.AccessGroup != nil {
		rec.AccessGroup = *b.AccessGroup
		rec.HasAccessGroup = true
	}
	return Snapshot{b.Record: rec}
}

// SortedFields returns the written field names in lexical order.
func (b *WriteBatch) SortedFields() []string {
	names := make([]string, 0, len(b.Writes))
	for _, w := range b.Writes {
		names = append(names, w.Field)
	}
	sort.Strings(names)
	return names
}

// Plan is everything one firing will apply to the destination.
type Plan struct {
	Batch      WriteBatch      `json:"batch"`
	Files      []FileTransfer  `json:"files,omitempty"`
	Operations []CopyOperation `json:"operations"`
	Blocked    []CopyOperation `json:"blocked,omitempty"`
	// WriteBack, when set, is written to the source record after the
	// destination write succeeds (autonumbered record ids).
	WriteBack *FieldWrite `json:"write_back,omitempty"`
}

// Empty reports whether the plan has no effect on the destination.
func (p *Plan) Empty() bool {
	return p.Batch.Empty() && len(p.Files) == 0
}

// BlockedPairs renders blocked operations as "src=>dst" for audit details.
func (p *Plan) BlockedPairs() []string {
	out := make([]string, 0, len(p.Blocked))
	for _, op := range p.Blocked {
		out = append(out, op.SourceField+"=>"+op.DestField)
	}
	return out
}
