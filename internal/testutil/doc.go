// Package testutil provides fixtures shared by engine, harness and CLI
// tests: a source and a destination project schema, a temporary store,
// static configuration and a recording notifier.
package testutil
