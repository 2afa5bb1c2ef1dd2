// Package sqlguard decides whether an Athena statement is read-only.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

var blocked = []string{
	"insert", "update", "delete", "merge", "drop", "alter", "create",
	"truncate", "grant", "revoke", "call", "execute", "prepare", "deallocate",
	"unload", "msck", "vacuum", "optimize",
}

var keywordRe = regexp.MustCompile(`\b(` + strings.Join(blocked, "|") + `)\b`)

// quoted literals are stripped before keyword matching so that
// WHERE action = 'delete' stays read-only.
var literalRe = regexp.MustCompile(`'(?:[^']|'')*'`)

// ReadOnly enforces:
// - one SELECT (or WITH ... SELECT) statement
// - no semicolon, no comments
// - no mutating keywords outside string literals
func ReadOnly(sql string) error {
	s := strings.TrimSpace(sql)
	if s == "" {
		return fmt.Errorf("empty sql")
	}
	low := strings.ToLower(s)

	if strings.Contains(low, ";") {
		return fmt.Errorf("semicolon not allowed")
	}
	if strings.Contains(low, "--") || strings.Contains(low, "/*") || strings.Contains(low, "*/") {
		return fmt.Errorf("comments not allowed")
	}
	if !(strings.HasPrefix(low, "select") || strings.HasPrefix(low, "with")) {
		return fmt.Errorf("only SELECT queries are read-only")
	}

	stripped := literalRe.ReplaceAllString(low, "''")
	if m := keywordRe.FindString(stripped); m != "" {
		return fmt.Errorf("disallowed keyword: %s", m)
	}
	return nil
}
