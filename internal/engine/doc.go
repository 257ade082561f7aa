// Package engine fires synchronization instructions when a source record
// is saved.
//
// For every save event the engine re-reads the project's instructions,
// validates each one, and fires the eligible ones strictly in configured
// order. A firing is a pipeline of explicit steps with no state shared
// between instructions:
//
//  1. Gate: disabled, trigger-form mismatch and false trigger condition
//     skip silently. Instructions with configuration errors are audited
//     and skipped.
//  2. Resolve (resolver.go): read the lookup value and resolve the
//     destination record: matched, created, reserved (autonumber) or skip.
//  3. Locate (locator.go): place every destination field in a flat slot or
//     a repeat instance.
//  4. Plan (planner.go, dag.go): build the write batch, the blocked pairs,
//     the file transfers and the access group.
//  5. Apply: write the batch, run file transfers, write back reserved ids
//     to the source, then audit.
//
// Collaborators are reached only through the interfaces in ports.go.
// Nothing is retried and nothing is rolled back: an id reservation or a
// file copy made before a failing write persists.
package engine
