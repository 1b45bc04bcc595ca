package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random id such as "goal-3f2c9a...". Time-ordered
// UUIDv7 keeps ids roughly sortable by creation.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}
