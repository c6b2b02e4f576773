package commands

import "fmt"

// FlagError reports invalid user input, detected before any statement is
// sent.
type FlagError struct {
	Flag   string
	Reason string
}

func (e *FlagError) Error() string {
	return fmt.Sprintf("invalid --%s: %s", e.Flag, e.Reason)
}

func flagErrorf(flag, format string, a ...any) error {
	return &FlagError{Flag: flag, Reason: fmt.Sprintf(format, a...)}
}
