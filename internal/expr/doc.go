// Package expr evaluates trigger conditions written in CEL.
//
// A condition sees the saved record through these variables:
//
//	record   map(string, string)  every field of the project, "" when unset,
//	                              read at the saved event and instance
//	id       string               the record id
//	event    string               unique name of the saved event
//	instance int                  the saved instance (1 for flat data)
//
// For example:
//
//	record.consent == "1" && int(record.age) >= 18
package expr
