package program

import "fmt"

// ParseError reports a declared output field missing or malformed in the
// raw model response. During optimization it counts as score 0 for the
// affected example, never as an aborted trial.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse output field %q: %s", e.Field, e.Reason)
}
