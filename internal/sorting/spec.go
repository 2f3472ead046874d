// Package sorting describes the active sort of a table and compares items
// under it.
package sorting

import (
	"fmt"
	"strings"
)

type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// ParseDirection accepts the wire forms "asc" and "desc".
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "asc", "":
		return Ascending, nil
	case "desc":
		return Descending, nil
	default:
		return 0, fmt.Errorf("unknown sort direction %q", value)
	}
}

// Spec is the active sort field and direction.
type Spec struct {
	Field     string
	Direction Direction
}

func (s Spec) Reverse() Spec {
	return Spec{Field: s.Field, Direction: -s.Direction}
}

func (s Spec) String() string {
	return s.Field + ":" + s.Direction.String()
}

// Toggle flips the direction when field is already active, otherwise it
// selects field ascending.
func Toggle(current Spec, field string) Spec {
	if field == current.Field {
		return current.Reverse()
	}
	return Spec{Field: field, Direction: Ascending}
}

type Kind string

const (
	KindString  Kind = "string"
	KindNumeric Kind = "number"
)

// Field declares a sortable field up front.
type Field struct {
	Name string
	Kind Kind
}

// ConfigurationError is returned at construction for invalid sortable
// declarations. It is not retryable.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: field %q: %s", e.Field, e.Reason)
}

func configError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
