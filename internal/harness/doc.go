// Package harness runs recsync scenarios end to end.
//
// A scenario is a YAML file naming project schemas, a rule set, seed
// data, a sequence of save events and assertions on the resulting data,
// audit log and outbox. Each scenario runs against a fresh in-memory
// store with the real engine, a CEL condition evaluator and
// deterministic document ids, so its trace is reproducible and can be
// compared with a golden file.
//
// Scenario paths are resolved relative to the scenario file.
package harness
