// Package config turns raw rule-set configuration into validated
// instructions.
//
// A rule set is a settings document whose "instructions" key holds an
// ordered list of raw instructions. Documents are authored as CUE, YAML or
// JSON (LoadFile) or exchanged as CSV (ExportCSV, ImportCSV).
//
// Parse validates one raw instruction against the source and destination
// project schemas. Validation never stops at the first problem: every
// failure is recorded as an Issue, errors separately from warnings, in a
// fixed order so that reports are stable. An instruction with any error
// must not fire.
package config
