package model

import (
	"fmt"
	"strings"
)

// Target addresses the entity a credential belongs to. ID is matched against
// both the stored target id and the stored target name.
type Target struct {
	Type TargetType
	ID   string
}

// String renders the target in "<type>:<id>" form.
func (t Target) String() string {
	return string(t.Type) + ":" + t.ID
}

// NewTarget validates a raw type/id pair.
func NewTarget(targetType, targetID string) (Target, error) {
	tt := TargetType(strings.TrimSpace(targetType))
	if !tt.Valid() {
		return Target{}, &ValidationError{
			Field:  "target_type",
			Reason: ReasonInvalidType,
			Msg:    fmt.Sprintf("unknown target type %q", targetType),
		}
	}
	id := strings.TrimSpace(targetID)
	if id == "" {
		return Target{}, &ValidationError{
			Field:  "target_id",
			Reason: ReasonNotFound,
			Msg:    "target id is empty",
		}
	}
	return Target{Type: tt, ID: id}, nil
}

// ParseAddress parses "<target_type>:<target_id>", e.g. "device:NAS".
// The address must have exactly two colon-separated parts.
func ParseAddress(address string) (Target, error) {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return Target{}, &ValidationError{
			Field:  "target",
			Reason: ReasonInvalidType,
			Msg:    fmt.Sprintf("malformed target address %q: want <type>:<id>", address),
		}
	}
	return NewTarget(parts[0], parts[1])
}
