package artifact

import "fmt"

// UnknownFactorError is returned when an operation names a factor the
// composite does not contain.
type UnknownFactorError struct {
	Name string
}

func (e *UnknownFactorError) Error() string {
	return fmt.Sprintf("factor %q not found", e.Name)
}
