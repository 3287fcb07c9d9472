package prompt

import "strings"

// Escape doubles single quotes so s can sit inside a ClickHouse string literal.
//
// This does not make attacker-controlled names safe: a model may still echo the name unescaped.
// Read-only execution and the validator are the enforcing layers.
func Escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// EscapeAll escapes every element of ss.
func EscapeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = Escape(s)
	}
	return out
}

// ServiceList renders services as a comma separated list of quoted, escaped literals.
func ServiceList(services []string) string {
	quoted := make([]string, len(services))
	for i, s := range services {
		quoted[i] = "'" + Escape(s) + "'"
	}
	return strings.Join(quoted, ", ")
}
