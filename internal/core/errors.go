package core

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid or inconsistent experiment configuration:
// unknown mode, negative mastermix volume, duplicate target wells or an
// empty required table.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// MissingReagentError lists part names referenced by reactions that have no
// registered source well.
type MissingReagentError struct {
	Reagents []string
}

func (e MissingReagentError) Error() string {
	return "parts listed in reactions but not on the source plate: " + strings.Join(e.Reagents, ", ")
}

// ValidationError reports malformed input such as a bad well identifier or a
// reaction without a target well.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: %s %q: %s", e.Field, e.Value, e.Reason)
}
