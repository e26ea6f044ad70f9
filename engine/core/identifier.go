package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewIdentifier returns a unique identifier for a named engine object. The
// name prefix keeps debug output readable, the uuid keeps it unique.
func NewIdentifier(name string) string {
	if name == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", name, uuid.NewString())
}
