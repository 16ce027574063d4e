package types

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed identifier such as PASS-3F9A1C2B7D10.
func NewID(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + raw[:12]
}
