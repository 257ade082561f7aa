package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sourceSchema = `id: "20"
primary_key: record_id
fields:
  record_id: {form: enrolment}
  rid: {form: enrolment}
  weight: {form: enrolment}
  med: {form: medications}
events:
  - id: "101"
    unique_name: baseline_arm_1
    forms: [enrolment, medications]
    repeating_forms: [medications]
`

const destSchema = `id: "30"
primary_key: subject_id
autonumber: true
fields:
  subject_id: {form: intake}
  wt: {form: intake}
events:
  - id: "201"
    unique_name: intake_arm_1
    forms: [intake]
`

const copyRules = `instructions:
  - enabled: true
    triggerForms: [enrolment]
    recordIdField: record_id
    recordMatchMode: match-or-create
    dagOption: ignore
    destinationProject: "30"
    copyFields:
      - {sourceField: weight, destField: wt}
`

// emptyLookupRules fail on every save: rid is never set.
const emptyLookupRules = `instructions:
  - enabled: true
    triggerForms: [enrolment]
    recordIdField: rid
    recordMatchMode: match-or-create
    dagOption: ignore
    destinationProject: "30"
    copyFields:
      - {sourceField: weight, destField: wt}
`

const invalidRules = `instructions:
  - enabled: true
    triggerForms: [enrolment]
    recordIdField: record_id
    recordMatchMode: match-or-create
    dagOption: ignore
    destinationProject: "99"
    copyFields:
      - {sourceField: weight, destField: wt}
`

// writeFile writes content to name in dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// newDB returns a database with the source and destination projects
// defined, and the temp directory holding it.
func newDB(t *testing.T) (db, dir string) {
	t.Helper()
	dir = t.TempDir()
	db = filepath.Join(dir, "recsync.db")
	_, err := execute(t, "project", "define", "--db", db,
		writeFile(t, dir, "source.yaml", sourceSchema),
		writeFile(t, dir, "dest.yaml", destSchema))
	require.NoError(t, err)
	return db, dir
}
