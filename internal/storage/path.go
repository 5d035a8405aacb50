package storage

import (
	"fmt"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,255}$`)

// JoinPath joins hierarchical name components. The first component keeps its
// leading slashes and the last keeps its trailing slashes; every join point
// carries exactly one slash and empty middle components are dropped.
func JoinPath(parts ...string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	joined := make([]string, 0, len(parts))
	if first := strings.TrimRight(parts[0], "/"); first != "" || strings.HasPrefix(parts[0], "/") {
		joined = append(joined, first)
	}
	for _, part := range parts[1 : len(parts)-1] {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			joined = append(joined, trimmed)
		}
	}
	last := strings.TrimLeft(parts[len(parts)-1], "/")
	if last != "" {
		joined = append(joined, last)
	}
	return strings.Join(joined, "/")
}

// ValidateTableName checks a catalog table name component.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}
