package config

import "fmt"

// Validation error codes (E1xx) and warning codes (W1xx).
const (
	ErrMissingKey            = "E101" // required instruction key absent
	ErrNotBoolean            = "E102" // value not coercible to bool
	ErrUnknownTriggerForm    = "E103" // trigger form not in source project
	ErrInvalidCondition      = "E104" // trigger condition fails syntax check
	ErrDestinationProject    = "E105" // destination project missing or unresolvable
	ErrEventCharacters       = "E106" // destination event has invalid characters
	ErrUnknownDestEvent      = "E107" // literal event not in destination project
	ErrUnknownEventField     = "E108" // event lookup field not in source project
	ErrUnknownRecordIDField  = "E109" // record id field not in source project
	ErrAutonumberPrimaryKey  = "E110" // autonumbering matched on source primary key
	ErrNoSecondaryKey        = "E111" // secondary-key lookup without destination secondary key
	ErrInvalidMatchMode      = "E112" // unknown record match mode
	ErrInvalidDAGOption      = "E113" // unknown access group option
	ErrNoCopyFields          = "E114" // copy field list empty
	ErrMissingSourceField    = "E115" // copy pair source missing or unknown
	ErrMissingDestField      = "E116" // copy pair destination missing
	ErrDestFieldCharacters   = "E117" // copy pair destination has invalid characters
	ErrUnknownDestField      = "E118" // copy pair destination not in destination project
	ErrDuplicateInstanceMark = "E119" // more than one instance marker pair
	ErrInvalidDAGMap         = "E120" // malformed access group mapping
	ErrFileToNonFile         = "E121" // file source copied into a non-file field

	WarnDAGMapDeprecated = "W101" // access group mapping option in use
)

// Issue is one validation finding, addressed to the offending setting.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Field, i.Message)
}

// IssueList formats issues as their messages, for audit details.
func IssueList(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Error()
	}
	return out
}
