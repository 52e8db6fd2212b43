package permission

import (
	"fmt"
	"strings"
)

// TrustLevel controls which tools run without asking.
type TrustLevel string

const (
	// TrustFull runs every tool automatically.
	TrustFull TrustLevel = "full"
	// TrustReadOnly runs Read, Grep and Glob automatically and asks for the rest.
	TrustReadOnly TrustLevel = "read_only"
	// TrustNone asks before every tool.
	TrustNone TrustLevel = "none"
)

// ParseTrustLevel accepts the canonical names plus a few aliases.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "all":
		return TrustFull, nil
	case "read_only", "readonly", "read-only", "read":
		return TrustReadOnly, nil
	case "none", "ask":
		return TrustNone, nil
	default:
		return "", fmt.Errorf("unknown trust level %q (want full, read_only or none)", s)
	}
}

// Describe returns a short human description of the level.
func (l TrustLevel) Describe() string {
	switch l {
	case TrustFull:
		return "all tools run automatically"
	case TrustReadOnly:
		return "read-only tools run automatically"
	case TrustNone:
		return "every tool asks first"
	default:
		return "unknown"
	}
}
