package config

import (
	"fmt"
	"strings"
)

// MountFlag is a parsed --mount value.
type MountFlag struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ParseMount parses a mount string like "./data:/data:ro".
func ParseMount(s string) (*MountFlag, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid mount: %s (expected source:target[:ro])", s)
	}

	m := &MountFlag{
		Source: parts[0],
		Target: parts[1],
	}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return nil, fmt.Errorf("invalid mount mode %q in %s (expected ro or rw)", parts[2], s)
		}
	}
	return m, nil
}
