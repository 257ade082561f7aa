// Package ir provides the shared types of the record synchronization engine.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps ir the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Field values are strings; the empty string is "no value"
//   - A record missing from a Snapshot is distinct from a record whose
//     fields are all empty
//   - Instance 0 addresses a flat (non-repeating) slot; repeating slots are
//     numbered from 1
//   - Canonical JSON (RFC 8785) is the only serialization used for content
//     hashing (settings history equality, firing ids)
package ir
