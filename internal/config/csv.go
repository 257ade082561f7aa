package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSV columns, in export order.
var csvColumns = []string{
	"sequence",
	KeyEnabled,
	KeyTriggerForms,
	KeyTriggerCondition,
	KeyDestinationProject,
	KeyDestinationEvent,
	KeyRecordIDField,
	KeyRecordMatchMode,
	KeyDAGOption,
	KeyDAGMap,
	KeyCopyFields,
}

// List separators inside a CSV cell.
const (
	listSep = ";"
	partSep = ":"
)

// ExportCSV writes instructions one per row. sep is the column separator
// (',' when zero). Copy fields are encoded as "source:dest:onlyIfEmpty"
// joined by ";"; trigger forms and dag map entries likewise.
func ExportCSV(w io.Writer, raws []Raw, sep rune) error {
	cw := csv.NewWriter(w)
	if sep != 0 {
		cw.Comma = sep
	}
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}

	for i, raw := range raws {
		pairs, _ := coerceObjectList(raw[KeyCopyFields])
		cells := make([]string, 0, len(pairs))
		for _, p := range pairs {
			only, _ := coerceBool(p[KeyOnlyIfEmpty])
			cells = append(cells, strings.Join([]string{
				coerceString(p[KeySourceField]),
				coerceString(p[KeyDestField]),
				boolCell(only),
			}, partSep))
		}

		dagEntries, _ := coerceObjectList(raw[KeyDAGMap])
		dag := make([]string, 0, len(dagEntries))
		for _, e := range dagEntries {
			dag = append(dag, coerceString(e[KeySourceGroup])+partSep+coerceString(e[KeyDestGroup]))
		}

		enabled, _ := coerceBool(raw[KeyEnabled])
		row := []string{
			strconv.Itoa(i + 1),
			boolCell(enabled),
			strings.Join(coerceStringList(raw[KeyTriggerForms]), listSep),
			coerceString(raw[KeyTriggerCondition]),
			coerceString(raw[KeyDestinationProject]),
			coerceString(raw[KeyDestinationEvent]),
			coerceString(raw[KeyRecordIDField]),
			coerceString(raw[KeyRecordMatchMode]),
			coerceString(raw[KeyDAGOption]),
			strings.Join(dag, listSep),
			strings.Join(cells, listSep),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export csv: row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ImportCSV reads instructions written by ExportCSV. Rows are ordered by
// file position; the sequence column is informational. All malformed rows
// are reported; the returned instructions are nil when any row failed.
func ImportCSV(r io.Reader, sep rune) ([]Raw, []error) {
	cr := csv.NewReader(r)
	if sep != 0 {
		cr.Comma = sep
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, []error{errors.New("import csv: empty file")}
	}
	if err != nil {
		return nil, []error{fmt.Errorf("import csv: header: %w", err)}
	}

	index := make(map[string]int, len(header))
	var errs []error
	for i, h := range header {
		h = strings.TrimSpace(h)
		if !isCSVColumn(h) {
			errs = append(errs, fmt.Errorf("import csv: unknown column %q", h))
			continue
		}
		index[h] = i
	}
	for _, key := range RequiredKeys {
		if _, ok := index[key]; !ok {
			errs = append(errs, fmt.Errorf("import csv: missing column %q", key))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var raws []Raw
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			errs = append(errs, fmt.Errorf("import csv: line %d: %w", line, err))
			continue
		}
		raw, rowErrs := csvRow(record, index, line)
		errs = append(errs, rowErrs...)
		raws = append(raws, raw)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return raws, nil
}

func csvRow(record []string, index map[string]int, line int) (Raw, []error) {
	cell := func(key string) (string, bool) {
		i, ok := index[key]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	raw := Raw{}
	var errs []error
	for _, key := range []string{
		KeyEnabled, KeyTriggerCondition, KeyDestinationProject, KeyDestinationEvent,
		KeyRecordIDField, KeyRecordMatchMode, KeyDAGOption,
	} {
		if v, ok := cell(key); ok && (v != "" || isRequired(key)) {
			raw[key] = v
		}
	}

	if v, ok := cell(KeyTriggerForms); ok {
		var forms []any
		for _, f := range splitList(v) {
			forms = append(forms, f)
		}
		raw[KeyTriggerForms] = forms
	}

	if v, ok := cell(KeyDAGMap); ok && v != "" {
		var entries []any
		for _, part := range splitList(v) {
			src, dst, found := strings.Cut(part, partSep)
			if !found {
				errs = append(errs, fmt.Errorf("import csv: line %d: dag map entry %q must be source%sdest", line, part, partSep))
				continue
			}
			entries = append(entries, map[string]any{KeySourceGroup: src, KeyDestGroup: dst})
		}
		raw[KeyDAGMap] = entries
	}

	if v, ok := cell(KeyCopyFields); ok {
		var pairs []any
		for _, part := range splitList(v) {
			bits := strings.Split(part, partSep)
			if len(bits) < 2 || len(bits) > 3 {
				errs = append(errs, fmt.Errorf("import csv: line %d: copy field %q must be source%sdest[%sonlyIfEmpty]", line, part, partSep, partSep))
				continue
			}
			pair := map[string]any{KeySourceField: bits[0], KeyDestField: bits[1]}
			if len(bits) == 3 {
				pair[KeyOnlyIfEmpty] = bits[2]
			}
			pairs = append(pairs, pair)
		}
		raw[KeyCopyFields] = pairs
	}

	return raw, errs
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, listSep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolCell(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func isCSVColumn(name string) bool {
	for _, c := range csvColumns {
		if c == name {
			return true
		}
	}
	return false
}

func isRequired(key string) bool {
	for _, k := range RequiredKeys {
		if k == key {
			return true
		}
	}
	return false
}
