package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiringError_Error(t *testing.T) {
	err := newFiringError(ErrCodeWrite, 2, "101", "write destination record", errors.New("disk full"))
	assert.Equal(t, "WRITE_FAILED: write destination record (instruction=2, record=101): disk full", err.Error())

	err = newFiringError(ErrCodeUnknownEvent, 1, "101", `event "x_arm_1" not in project 30`, nil)
	assert.Equal(t, `UNKNOWN_EVENT: event "x_arm_1" not in project 30 (instruction=1, record=101)`, err.Error())
}

func TestFiringError_Unwrap(t *testing.T) {
	lookup := &LookupError{Code: AmbiguousLookup, Field: "mrn", Value: "M1", Matches: []string{"A", "B"}}
	err := fmt.Errorf("fire: %w", newFiringError(ErrCodeLookup, 1, "101", "resolve destination record", lookup))

	assert.True(t, IsFiringError(err, ErrCodeLookup))
	assert.False(t, IsFiringError(err, ErrCodeWrite))
	assert.True(t, IsLookupError(err))
	assert.True(t, IsAmbiguousLookup(err))

	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, []string{"A", "B"}, le.Matches)
}

func TestLookupError_Error(t *testing.T) {
	assert.Equal(t, "EMPTY_LOOKUP: lookup field rid is empty",
		(&LookupError{Code: EmptyLookup, Field: "rid"}).Error())
	assert.Equal(t, `AMBIGUOUS_LOOKUP: mrn="M1" matches records A,B`,
		(&LookupError{Code: AmbiguousLookup, Field: "mrn", Value: "M1", Matches: []string{"A", "B"}}).Error())
	assert.False(t, IsAmbiguousLookup(&LookupError{Code: EmptyLookup}))
	assert.False(t, IsLookupError(errors.New("plain")))
}
