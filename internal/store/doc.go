// Package store provides SQLite-backed storage for recsync.
//
// One database holds:
//   - Projects: schemas (events, forms, fields, primary/secondary keys)
//   - Records: values keyed by event, repeat group and instance
//   - Files: attachments referenced from file fields by document id
//   - Audit log and notification outbox, scoped per project
//   - Settings history: every distinct saved rule set per project
//
// Record values are stored one row per (record, event, repeat form,
// instance, field). Instance 0 marks flat data; repeat_form is empty for a
// repeating event. Empty values are not stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Settings are stored as RFC 8785 canonical JSON so that equal rule sets
// hash equal (internal/ir/hash.go).
package store
